// Package spatial caches bounding-box query results. Entries carry their own
// computation timestamp so freshness is checked against an application-level
// staleness budget that is usually much shorter than the store's TTL.
package spatial

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cache"
	"github.com/Harsh-BH/geocache/internal/cachekey"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/metrics"
)

const tracerName = "github.com/Harsh-BH/geocache/internal/spatial"

// Policy controls how long an entry lives. TTL is enforced by the store, Stale by
// the cache on every read. A zero Stale leaves expiry to the TTL alone.
type Policy struct {
	TTL   time.Duration
	Stale time.Duration
}

// Options alter a single lookup.
type Options struct {
	ForceRefresh    bool // skip the read and recompute
	ForceInvalidate bool // delete the entry before doing anything else
}

// ComputeFunc runs the origin query.
type ComputeFunc[T any] func(ctx context.Context) ([]T, error)

// Cache is a read-through cache of result lists.
type Cache[T any] struct {
	store  *cache.Store
	logger *zap.Logger
	now    func() time.Time
}

func New[T any](store *cache.Store, logger *zap.Logger) *Cache[T] {
	return &Cache[T]{store: store, logger: logger, now: time.Now}
}

// SetClock replaces the time source.
func (c *Cache[T]) SetClock(now func() time.Time) {
	c.now = now
}

// GetOrCompute returns the cached list for key when it is within the staleness
// budget and otherwise runs compute and caches its result. Stale entries are
// deleted before recomputing. Only compute errors are returned.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, p Policy, compute ComputeFunc[T], o Options) ([]T, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "spatial.GetOrCompute")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key))

	if o.ForceInvalidate {
		c.store.Delete(ctx, key)
	}

	outcome := "refresh"
	if !o.ForceRefresh {
		var entry domain.CacheEntry[[]T]
		if c.store.Get(ctx, key, &entry) {
			if c.fresh(entry.CachedAt, p.Stale) {
				metrics.SpatialCacheTotal.WithLabelValues("hit").Inc()
				span.SetAttributes(attribute.String("cache.outcome", "hit"))
				return entry.Payload, nil
			}
			c.logger.Debug("Spatial cache entry stale, recomputing",
				zap.String("key", key),
				zap.Int64("cached_at", entry.CachedAt),
			)
			c.store.Delete(ctx, key)
			outcome = "stale"
		} else {
			outcome = "miss"
		}
	}
	metrics.SpatialCacheTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("cache.outcome", outcome))

	items, err := compute(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if items == nil {
		items = []T{}
	}

	c.store.SetAsync(ctx, key, domain.CacheEntry[[]T]{
		Key:      key,
		Payload:  items,
		CachedAt: c.now().Unix(),
	}, p.TTL)
	return items, nil
}

func (c *Cache[T]) fresh(cachedAt int64, stale time.Duration) bool {
	if stale <= 0 {
		return true
	}
	age := c.now().Sub(time.Unix(cachedAt, 0))
	return age <= stale
}

// Invalidate deletes keys. Failures are logged by the store and swallowed.
func (c *Cache[T]) Invalidate(ctx context.Context, keys ...string) {
	c.store.Delete(ctx, keys...)
}

// InvalidateContaining deletes every entry in namespace whose bounds contain the
// point and returns how many keys were targeted.
func (c *Cache[T]) InvalidateContaining(ctx context.Context, namespace string, lat, lng float64) int {
	var victims []string
	for _, key := range c.store.Scan(ctx, cachekey.SpatialNamespace(namespace)) {
		_, b, _, err := cachekey.ParseBounds(key)
		if err != nil {
			c.logger.Debug("Skipping unparseable spatial key", zap.String("key", key), zap.Error(err))
			continue
		}
		if b.Contains(lat, lng) {
			victims = append(victims, key)
		}
	}
	if len(victims) == 0 {
		return 0
	}
	c.store.Delete(ctx, victims...)
	c.logger.Debug("Invalidated spatial cache entries",
		zap.String("namespace", namespace),
		zap.Int("count", len(victims)),
	)
	return len(victims)
}

// InvalidateNamespace deletes every entry in namespace.
func (c *Cache[T]) InvalidateNamespace(ctx context.Context, namespace string) int {
	keys := c.store.Scan(ctx, cachekey.SpatialNamespace(namespace))
	c.store.Delete(ctx, keys...)
	return len(keys)
}
