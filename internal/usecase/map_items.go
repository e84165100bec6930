package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cachekey"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/repository"
	"github.com/Harsh-BH/geocache/internal/spatial"
)

const (
	defaultMapLimit = 100
	maxMapLimit     = 500
	maxTitleLength  = 200
)

// DefaultMapPolicies are the cache policies per category. Incidents change fast,
// events are planned ahead.
var DefaultMapPolicies = map[domain.Category]spatial.Policy{
	domain.CategoryIncident: {TTL: 15 * time.Minute, Stale: 2 * time.Minute},
	domain.CategoryEvent:    {TTL: 15 * time.Minute, Stale: 10 * time.Minute},
}

// MapQuery is a bounding-box listing request.
type MapQuery struct {
	Category        domain.Category
	Bounds          domain.Bounds
	Limit           int
	ForceRefresh    bool
	ForceInvalidate bool
}

// MapItemsUsecase serves bounding-box listings through the spatial cache and
// invalidates affected boxes after every mutation.
type MapItemsUsecase struct {
	repo     repository.MapItemRepository
	cache    *spatial.Cache[domain.MapItem]
	policies map[domain.Category]spatial.Policy
	logger   *zap.Logger
}

// NewMapItemsUsecase creates a new MapItemsUsecase. Categories missing from
// policies use DefaultMapPolicies.
func NewMapItemsUsecase(
	repo repository.MapItemRepository,
	cache *spatial.Cache[domain.MapItem],
	policies map[domain.Category]spatial.Policy,
	logger *zap.Logger,
) *MapItemsUsecase {
	merged := make(map[domain.Category]spatial.Policy, len(DefaultMapPolicies))
	for c, p := range DefaultMapPolicies {
		merged[c] = p
	}
	for c, p := range policies {
		merged[c] = p
	}
	return &MapItemsUsecase{
		repo:     repo,
		cache:    cache,
		policies: merged,
		logger:   logger,
	}
}

// List returns the items of q.Category inside q.Bounds.
func (uc *MapItemsUsecase) List(ctx context.Context, q MapQuery) ([]domain.MapItem, error) {
	if !q.Category.IsValid() {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, q.Category)
	}
	b, err := q.Bounds.Validate()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultMapLimit
	}
	if limit > maxMapLimit {
		limit = maxMapLimit
	}

	key := cachekey.Bounds(string(q.Category), b, limit)
	return uc.cache.GetOrCompute(ctx, key, uc.policies[q.Category],
		func(ctx context.Context) ([]domain.MapItem, error) {
			items, err := uc.repo.ListInBounds(ctx, q.Category, b, limit)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", q.Category, err)
			}
			return items, nil
		},
		spatial.Options{ForceRefresh: q.ForceRefresh, ForceInvalidate: q.ForceInvalidate},
	)
}

// Create stores item and invalidates every cached box containing it.
func (uc *MapItemsUsecase) Create(ctx context.Context, item *domain.MapItem) error {
	if !item.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, item.Category)
	}
	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" || len(item.Title) > maxTitleLength {
		return fmt.Errorf("%w: title must be 1-%d characters", domain.ErrInvalidInput, maxTitleLength)
	}
	loc, err := domain.Input{Lat: item.Lat, Lng: item.Lng}.Normalize(domain.KindReverse)
	if err != nil {
		return err
	}
	item.Lat, item.Lng = loc.Lat, loc.Lng
	if item.Pincode != "" {
		pin, err := domain.Input{Pincode: item.Pincode}.Normalize(domain.KindCoords)
		if err != nil {
			return err
		}
		item.Pincode = pin.Pincode
	}

	if err := uc.repo.Create(ctx, item); err != nil {
		return fmt.Errorf("create %s: %w", item.Category, err)
	}
	uc.invalidate(ctx, item)
	return nil
}

// Delete removes an item and invalidates every cached box that contained it.
func (uc *MapItemsUsecase) Delete(ctx context.Context, category domain.Category, id string) error {
	if !category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, category)
	}
	item, err := uc.repo.Delete(ctx, category, id)
	if err != nil {
		return err
	}
	uc.invalidate(ctx, item)
	return nil
}

// invalidate never fails the mutation that triggered it.
func (uc *MapItemsUsecase) invalidate(ctx context.Context, item *domain.MapItem) {
	n := uc.cache.InvalidateContaining(context.WithoutCancel(ctx), string(item.Category), item.Lat, item.Lng)
	uc.logger.Debug("Map cache invalidated",
		zap.String("category", string(item.Category)),
		zap.String("item_id", item.ID),
		zap.Int("keys", n),
	)
}
