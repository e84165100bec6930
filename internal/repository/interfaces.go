package repository

import (
	"context"
	"time"

	"github.com/Harsh-BH/geocache/internal/domain"
)

// ResultStore is a key/value store with per-key expiration. Implementations must be
// safe for concurrent use.
type ResultStore interface {
	// Get returns the value stored under key, or domain.ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Scan lists the keys starting with prefix.
	Scan(ctx context.Context, prefix string) ([]string, error)
}

// JobStore persists geocode job records keyed by job id.
type JobStore interface {
	// Save writes job if its status is a legal successor of the stored one.
	// Returns domain.ErrInvalidTransition otherwise.
	Save(ctx context.Context, job *domain.GeocodeJob, ttl time.Duration) error

	// Get retrieves a job by id, or domain.ErrJobNotFound.
	Get(ctx context.Context, jobID string) (*domain.GeocodeJob, error)
}

// IdempotencyStore defines the interface for distributed deduplication locks.
type IdempotencyStore interface {
	// AcquireLock attempts to acquire an exclusive processing lock for a job.
	// Returns true if the lock was acquired (first time), false if already locked (duplicate).
	AcquireLock(ctx context.Context, jobID string) (bool, error)

	// ReleaseLock releases the processing lock with a TTL for eventual cleanup.
	ReleaseLock(ctx context.Context, jobID string) error

	// DropLock deletes the lock so a redelivered job is processed again.
	DropLock(ctx context.Context, jobID string) error
}

// MapItemRepository is the origin of bounding-box queries for incidents and events.
type MapItemRepository interface {
	// ListInBounds returns up to limit items of category inside b, newest first.
	ListInBounds(ctx context.Context, category domain.Category, b domain.Bounds, limit int) ([]domain.MapItem, error)

	// Create inserts item and fills in its ID and CreatedAt.
	Create(ctx context.Context, item *domain.MapItem) error

	// Delete removes an item and returns it, or domain.ErrItemNotFound.
	Delete(ctx context.Context, category domain.Category, id string) (*domain.MapItem, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
