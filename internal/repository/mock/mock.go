package mock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/repository"
)

// ---- ResultStore mock ----

var _ repository.ResultStore = (*ResultStore)(nil)

// ResultStore is an in-memory test double for repository.ResultStore.
// TTLs are recorded but not enforced.
type ResultStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration

	GetFn    func(ctx context.Context, key string) ([]byte, error)
	SetFn    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFn func(ctx context.Context, keys ...string) error
	ScanFn   func(ctx context.Context, prefix string) ([]string, error)

	// Recorded calls for assertions.
	GetCalls    []string
	SetCalls    []string
	DeleteCalls []string
}

// NewResultStore creates an empty mock result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (m *ResultStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, key)
	m.mu.Unlock()
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), v...), nil
}

func (m *ResultStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, key)
	m.mu.Unlock()
	if m.SetFn != nil {
		return m.SetFn(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	m.ttls[key] = ttl
	return nil
}

func (m *ResultStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, keys...)
	m.mu.Unlock()
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, keys...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		delete(m.ttls, k)
	}
	return nil
}

func (m *ResultStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	if m.ScanFn != nil {
		return m.ScanFn(ctx, prefix)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Raw returns the stored bytes for key (for test assertions).
func (m *ResultStore) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// TTL returns the TTL recorded for key.
func (m *ResultStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// Put stores raw bytes without recording a call.
func (m *ResultStore) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Sets returns how many Set calls were made.
func (m *ResultStore) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SetCalls)
}

// ---- JobStore mock ----

var _ repository.JobStore = (*JobStore)(nil)

// JobStore is an in-memory test double for repository.JobStore that enforces
// monotonic status transitions like the real store.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]domain.GeocodeJob

	SaveFn func(ctx context.Context, job *domain.GeocodeJob, ttl time.Duration) error
	GetFn  func(ctx context.Context, jobID string) (*domain.GeocodeJob, error)

	// SaveErr, when set, can fail a write before it reaches the in-memory store.
	SaveErr func(job *domain.GeocodeJob) error

	// Saved records every status written, in order.
	Saved []domain.Status
}

// NewJobStore creates an empty mock job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]domain.GeocodeJob)}
}

func (m *JobStore) Save(ctx context.Context, job *domain.GeocodeJob, ttl time.Duration) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, job, ttl)
	}
	if m.SaveErr != nil {
		if err := m.SaveErr(job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.jobs[job.JobID]; ok && !cur.Status.CanTransition(job.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, cur.Status, job.Status)
	}
	m.jobs[job.JobID] = *job
	m.Saved = append(m.Saved, job.Status)
	return nil
}

func (m *JobStore) Get(ctx context.Context, jobID string) (*domain.GeocodeJob, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, jobID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

// GetAll returns all stored jobs (for test assertions).
func (m *JobStore) GetAll() []domain.GeocodeJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.GeocodeJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}

// ---- IdempotencyStore mock ----

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore is a test double for repository.IdempotencyStore.
type IdempotencyStore struct {
	mu sync.Mutex

	AcquireLockFn func(ctx context.Context, jobID string) (bool, error)
	ReleaseLockFn func(ctx context.Context, jobID string) error

	AcquireCalls []string
	ReleaseCalls []string
	DropCalls    []string
}

func (m *IdempotencyStore) AcquireLock(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, jobID)
	m.mu.Unlock()
	if m.AcquireLockFn != nil {
		return m.AcquireLockFn(ctx, jobID)
	}
	return true, nil // default: lock acquired
}

func (m *IdempotencyStore) ReleaseLock(ctx context.Context, jobID string) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, jobID)
	m.mu.Unlock()
	if m.ReleaseLockFn != nil {
		return m.ReleaseLockFn(ctx, jobID)
	}
	return nil
}

func (m *IdempotencyStore) DropLock(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DropCalls = append(m.DropCalls, jobID)
	return nil
}

// ---- MapItemRepository mock ----

var _ repository.MapItemRepository = (*MapItemRepository)(nil)

// MapItemRepository is an in-memory test double for repository.MapItemRepository.
type MapItemRepository struct {
	mu    sync.Mutex
	items []domain.MapItem
	seq   int

	ListFn func(ctx context.Context, category domain.Category, b domain.Bounds, limit int) ([]domain.MapItem, error)

	ListCalls int
}

// NewMapItemRepository creates an empty mock repository.
func NewMapItemRepository() *MapItemRepository {
	return &MapItemRepository{}
}

func (m *MapItemRepository) ListInBounds(ctx context.Context, category domain.Category, b domain.Bounds, limit int) ([]domain.MapItem, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()
	if m.ListFn != nil {
		return m.ListFn(ctx, category, b, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.MapItem{}
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		it := m.items[i]
		if it.Category == category && b.Contains(it.Lat, it.Lng) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *MapItemRepository) Create(ctx context.Context, item *domain.MapItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	item.ID = fmt.Sprintf("item-%d", m.seq)
	item.CreatedAt = time.Now().UTC()
	m.items = append(m.items, *item)
	return nil
}

func (m *MapItemRepository) Delete(ctx context.Context, category domain.Category, id string) (*domain.MapItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.items {
		if it.ID == id && it.Category == category {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return &it, nil
		}
	}
	return nil, domain.ErrItemNotFound
}

func (m *MapItemRepository) Ping(ctx context.Context) error {
	return nil
}

// Calls returns how many ListInBounds calls were made.
func (m *MapItemRepository) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ListCalls
}
