package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cache"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/repository/mock"
	"github.com/Harsh-BH/geocache/internal/spatial"
	"github.com/Harsh-BH/geocache/internal/usecase"
)

var hoboken = domain.Bounds{MinLat: 40.74, MaxLat: 40.76, MinLng: -74.05, MaxLng: -74.03}

func newTestMapItems(repo *mock.MapItemRepository, results *mock.ResultStore) (*usecase.MapItemsUsecase, *cache.Store) {
	store := cache.NewStore(results, time.Second, zap.NewNop())
	sc := spatial.New[domain.MapItem](store, zap.NewNop())
	return usecase.NewMapItemsUsecase(repo, sc, nil, zap.NewNop()), store
}

func TestMapItems_ListIsCached(t *testing.T) {
	repo := mock.NewMapItemRepository()
	results := mock.NewResultStore()
	uc, store := newTestMapItems(repo, results)
	q := usecase.MapQuery{Category: domain.CategoryIncident, Bounds: hoboken, Limit: 100}

	if _, err := uc.List(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.Flush()
	if _, err := uc.List(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.Calls() != 1 {
		t.Errorf("expected one origin query, got %d", repo.Calls())
	}

	key := "spatial:incident:40.740000:40.760000:-74.050000:-74.030000:100"
	if results.TTL(key) != 15*time.Minute {
		t.Errorf("expected incident TTL 15m under %s, got %v", key, results.TTL(key))
	}

	if _, err := uc.List(context.Background(), usecase.MapQuery{Category: domain.CategoryIncident, Bounds: hoboken, Limit: 100, ForceRefresh: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.Calls() != 2 {
		t.Errorf("refresh should hit the origin, got %d queries", repo.Calls())
	}
}

func TestMapItems_CreateInvalidatesContainingBoxes(t *testing.T) {
	repo := mock.NewMapItemRepository()
	results := mock.NewResultStore()
	uc, store := newTestMapItems(repo, results)
	q := usecase.MapQuery{Category: domain.CategoryIncident, Bounds: hoboken}

	before, _ := uc.List(context.Background(), q)
	store.Flush()
	if len(before) != 0 {
		t.Fatalf("expected empty map, got %v", before)
	}

	item := &domain.MapItem{Category: domain.CategoryIncident, Title: " Water main break ", Lat: 40.75, Lng: -74.04}
	if err := uc.Create(context.Background(), item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.ID == "" || item.Title != "Water main break" {
		t.Errorf("unexpected stored item %+v", item)
	}

	after, _ := uc.List(context.Background(), q)
	store.Flush()
	if len(after) != 1 || after[0].ID != item.ID {
		t.Fatalf("expected the new item after invalidation, got %v", after)
	}

	if err := uc.Delete(context.Background(), domain.CategoryIncident, item.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	final, _ := uc.List(context.Background(), q)
	if len(final) != 0 {
		t.Errorf("deleted item still listed: %v", final)
	}
	if repo.Calls() != 3 {
		t.Errorf("expected a fresh origin query after each mutation, got %d", repo.Calls())
	}
}

func TestMapItems_InvalidationFailureDoesNotFailMutation(t *testing.T) {
	repo := mock.NewMapItemRepository()
	results := mock.NewResultStore()
	results.ScanFn = func(ctx context.Context, prefix string) ([]string, error) {
		return nil, errors.New("redis down")
	}
	uc, _ := newTestMapItems(repo, results)

	err := uc.Create(context.Background(), &domain.MapItem{Category: domain.CategoryEvent, Title: "Yard sale", Lat: 40.75, Lng: -74.04})
	if err != nil {
		t.Fatalf("mutation failed because of the cache: %v", err)
	}
}

func TestMapItems_Validation(t *testing.T) {
	uc, _ := newTestMapItems(mock.NewMapItemRepository(), mock.NewResultStore())
	ctx := context.Background()

	cases := []struct {
		name string
		err  error
	}{
		{"unknown category", func() error {
			_, err := uc.List(ctx, usecase.MapQuery{Category: "party", Bounds: hoboken})
			return err
		}()},
		{"inverted bounds", func() error {
			_, err := uc.List(ctx, usecase.MapQuery{Category: domain.CategoryEvent, Bounds: domain.Bounds{MinLat: 41, MaxLat: 40, MinLng: -74.05, MaxLng: -74.03}})
			return err
		}()},
		{"empty title", uc.Create(ctx, &domain.MapItem{Category: domain.CategoryEvent, Lat: 1, Lng: 1})},
		{"bad latitude", uc.Create(ctx, &domain.MapItem{Category: domain.CategoryEvent, Title: "x", Lat: 91})},
		{"bad pincode", uc.Create(ctx, &domain.MapItem{Category: domain.CategoryEvent, Title: "x", Pincode: "12"})},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, domain.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, tc.err)
		}
	}

	if err := uc.Delete(ctx, domain.CategoryEvent, "missing"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}
