package redis

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/geocache/internal/domain"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestResultStore_SetGetDelete(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewResultStore(client)
	ctx := context.Background()

	if _, err := store.Get(ctx, "coords:07307"); !errors.Is(err, domain.ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := store.Set(ctx, "coords:07307", []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.Get(ctx, "coords:07307")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("unexpected value %s", got)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "coords:07307"); !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("expected entry to expire, got %v", err)
	}

	_ = store.Set(ctx, "k1", []byte("v"), time.Minute)
	if err := store.Delete(ctx, "k1", "missing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists("k1") {
		t.Error("expected k1 to be deleted")
	}
}

func TestResultStore_Scan(t *testing.T) {
	_, client := newTestClient(t)
	store := NewResultStore(client)
	ctx := context.Background()

	for _, k := range []string{"spatial:incident:a", "spatial:incident:b", "spatial:event:a", "coords:07307"} {
		_ = store.Set(ctx, k, []byte("x"), time.Minute)
	}

	keys, err := store.Scan(ctx, "spatial:incident:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "spatial:incident:a" || keys[1] != "spatial:incident:b" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestResultStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewResultStore(client)
	mr.Close()

	_, err = store.Get(context.Background(), "coords:07307")
	if err == nil || errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("expected a connection error, got %v", err)
	}
}

func TestJobStore_MonotonicStatus(t *testing.T) {
	_, client := newTestClient(t)
	store := NewJobStore(client)
	ctx := context.Background()
	now := time.Now().UTC()

	job := &domain.GeocodeJob{JobID: "job-1", Kind: domain.KindCoords, Input: domain.Input{Pincode: "07307"}, Status: domain.StatusQueued, CreatedAt: now}
	if err := store.Save(ctx, job, time.Hour); err != nil {
		t.Fatalf("save queued: %v", err)
	}

	done := *job
	done.Status = domain.StatusCompleted
	done.Result = &domain.GeoResult{Coords: &domain.Coordinates{Lat: 40.7, Lng: -74.0}}
	if err := store.Save(ctx, &done, time.Hour); err != nil {
		t.Fatalf("save completed: %v", err)
	}

	// A late "processing" write from a slow worker must not regress the record.
	late := *job
	late.Status = domain.StatusProcessing
	if err := store.Save(ctx, &late, time.Hour); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.Result == nil {
		t.Errorf("expected completed job with result, got %+v", got)
	}
}

func TestJobStore_NotFound(t *testing.T) {
	_, client := newTestClient(t)
	store := NewJobStore(client)

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestIdempotency_AcquireOnce(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewRedisIdempotencyStore(client)
	ctx := context.Background()

	ok, err := store.AcquireLock(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got %v %v", ok, err)
	}
	ok, err = store.AcquireLock(ctx, "job-1")
	if err != nil || ok {
		t.Fatalf("expected duplicate acquire to fail, got %v %v", ok, err)
	}

	if err := store.ReleaseLock(ctx, "job-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl := mr.TTL(lockKeyPrefix + "job-1"); ttl <= 0 {
		t.Errorf("expected lock to carry a TTL, got %v", ttl)
	}
}

func TestIdempotency_DropLockAllowsReacquire(t *testing.T) {
	_, client := newTestClient(t)
	store := NewRedisIdempotencyStore(client)
	ctx := context.Background()

	if ok, _ := store.AcquireLock(ctx, "job-2"); !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if err := store.DropLock(ctx, "job-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := store.AcquireLock(ctx, "job-2"); !ok {
		t.Error("expected acquire after drop to succeed")
	}
}
