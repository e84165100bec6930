// Package cache wraps a repository.ResultStore with best-effort semantics: reads
// that fail are misses, writes are fire-and-forget, and no store failure ever
// reaches a caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/metrics"
	"github.com/Harsh-BH/geocache/internal/repository"
)

const defaultOpTimeout = 250 * time.Millisecond

// Store is the best-effort result store adapter.
//
// Background writes are tracked per key so that a Delete issued while a write is
// in flight still wins: queued writes are dropped, writes already sent are waited
// for (up to the op timeout) and removed after they land.
type Store struct {
	backend   repository.ResultStore
	opTimeout time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	pending  map[string]*pendingWrites
}

// pendingWrites tracks the background writes for one key. gen is bumped by
// Delete; a write started under an older gen is void.
type pendingWrites struct {
	n    int
	gen  uint64
	done chan struct{}
}

// NewStore creates a best-effort adapter. opTimeout bounds every backend call.
func NewStore(backend repository.ResultStore, opTimeout time.Duration, logger *zap.Logger) *Store {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	s := &Store{
		backend:   backend,
		opTimeout: opTimeout,
		logger:    logger,
		pending:   make(map[string]*pendingWrites),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Get decodes the value under key into v. It returns false on a miss, on a
// store failure and on an undecodable value.
func (s *Store) Get(ctx context.Context, key string, v any) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, domain.ErrCacheMiss) {
		metrics.CacheOps.WithLabelValues("get", "miss").Inc()
		return false
	}
	if err != nil {
		metrics.CacheOps.WithLabelValues("get", "error").Inc()
		s.logger.Warn("Result store read failed, treating as miss",
			zap.String("key", key),
			zap.Error(errors.Join(domain.ErrCacheUnavailable, err)),
		)
		return false
	}

	if err := json.Unmarshal(raw, v); err != nil {
		metrics.CacheOps.WithLabelValues("get", "corrupt").Inc()
		s.logger.Warn("Undecodable cache entry, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	metrics.CacheOps.WithLabelValues("get", "hit").Inc()
	return true
}

// SetAsync writes v under key in the background. The write is detached from the
// caller's cancellation, bounded by the op timeout, and never retried.
func (s *Store) SetAsync(ctx context.Context, key string, v any, ttl time.Duration) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}

	s.mu.Lock()
	pw := s.pending[key]
	if pw == nil {
		pw = &pendingWrites{done: make(chan struct{})}
		s.pending[key] = pw
	}
	pw.n++
	gen := pw.gen
	s.inflight++
	s.mu.Unlock()

	go func() {
		defer s.finish(key, pw)
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
		defer cancel()

		if !s.current(pw, gen) {
			metrics.CacheOps.WithLabelValues("set", "invalidated").Inc()
			return
		}
		if err := s.backend.Set(wctx, key, body, ttl); err != nil {
			metrics.CacheOps.WithLabelValues("set", "error").Inc()
			s.logger.Warn("Result store write discarded",
				zap.String("key", key),
				zap.Error(errors.Join(domain.ErrCacheUnavailable, err)),
			)
			return
		}
		metrics.CacheOps.WithLabelValues("set", "ok").Inc()

		// Deleted while the write was on the wire and Delete gave up waiting.
		if !s.current(pw, gen) {
			dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
			defer dcancel()
			if err := s.backend.Delete(dctx, key); err != nil {
				s.logger.Warn("Failed to remove invalidated write", zap.String("key", key), zap.Error(err))
			}
		}
	}()
}

func (s *Store) current(pw *pendingWrites, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pw.gen == gen
}

func (s *Store) finish(key string, pw *pendingWrites) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw.n--
	if pw.n == 0 {
		close(pw.done)
		if s.pending[key] == pw {
			delete(s.pending, key)
		}
	}
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
}

// Set writes v under key and waits for the outcome. Used where ordering matters
// (a job record must exist before its job is published); failures are logged
// and reported as false.
func (s *Store) Set(ctx context.Context, key string, v any, ttl time.Duration) bool {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.backend.Set(ctx, key, body, ttl); err != nil {
		metrics.CacheOps.WithLabelValues("set", "error").Inc()
		s.logger.Warn("Result store write failed", zap.String("key", key), zap.Error(err))
		return false
	}
	metrics.CacheOps.WithLabelValues("set", "ok").Inc()
	return true
}

// Delete removes keys, logging and swallowing failures.
func (s *Store) Delete(ctx context.Context, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	s.voidPending(keys)

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.backend.Delete(ctx, keys...); err != nil {
		metrics.CacheOps.WithLabelValues("delete", "error").Inc()
		s.logger.Warn("Result store delete failed", zap.Strings("keys", keys), zap.Error(err))
		return false
	}
	metrics.CacheOps.WithLabelValues("delete", "ok").Inc()
	return true
}

// voidPending cancels queued writes for keys and waits, up to the op timeout,
// for writes already sent to the backend.
func (s *Store) voidPending(keys []string) {
	var waits []chan struct{}
	s.mu.Lock()
	for _, k := range keys {
		if pw := s.pending[k]; pw != nil {
			pw.gen++
			waits = append(waits, pw.done)
		}
	}
	s.mu.Unlock()
	if len(waits) == 0 {
		return
	}

	timer := time.NewTimer(s.opTimeout)
	defer timer.Stop()
	for _, done := range waits {
		select {
		case <-done:
		case <-timer.C:
			return
		}
	}
}

// Scan lists keys under prefix, including keys with writes still in flight.
// A backend failure yields only the in-flight keys.
func (s *Store) Scan(ctx context.Context, prefix string) []string {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	keys, err := s.backend.Scan(ctx, prefix)
	if err != nil {
		metrics.CacheOps.WithLabelValues("scan", "error").Inc()
		s.logger.Warn("Result store scan failed", zap.String("prefix", prefix), zap.Error(err))
		keys = nil
	} else {
		metrics.CacheOps.WithLabelValues("scan", "ok").Inc()
	}

	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	s.mu.Lock()
	for k := range s.pending {
		if _, ok := seen[k]; !ok && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Flush blocks until all background writes, including ones started while it
// waits, have finished.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
}
