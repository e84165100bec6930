package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cache"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/repository/mock"
	"github.com/Harsh-BH/geocache/internal/usecase"
)

func newTestProcess(jobs *mock.JobStore, idem *mock.IdempotencyStore, gc stubGeocoder) (*usecase.ProcessJobUsecase, *mock.ResultStore, *cache.Store) {
	results := mock.NewResultStore()
	store := cache.NewStore(results, time.Second, zap.NewNop())
	uc := usecase.NewProcessJobUsecase(jobs, idem, gc, store, usecase.TTLs{}, time.Second, zap.NewNop())
	return uc, results, store
}

func newQueuedJob(t *testing.T, jobs *mock.JobStore) *domain.GeocodeJob {
	t.Helper()
	job := &domain.GeocodeJob{
		JobID:     uuid.NewString(),
		Kind:      domain.KindCoords,
		Input:     domain.Input{Pincode: "07307"},
		Status:    domain.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := jobs.Save(context.Background(), job, time.Hour); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestProcessJob_Success(t *testing.T) {
	jobs := mock.NewJobStore()
	idem := &mock.IdempotencyStore{}
	uc, results, store := newTestProcess(jobs, idem, stubGeocoder{})
	job := newQueuedJob(t, jobs)

	isDup, err := uc.Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isDup {
		t.Fatal("expected not duplicate")
	}

	want := []domain.Status{domain.StatusQueued, domain.StatusProcessing, domain.StatusCompleted}
	if len(jobs.Saved) != len(want) {
		t.Fatalf("expected statuses %v, got %v", want, jobs.Saved)
	}
	for i := range want {
		if jobs.Saved[i] != want[i] {
			t.Errorf("status %d: expected %s, got %s", i, want[i], jobs.Saved[i])
		}
	}

	stored, _ := jobs.Get(context.Background(), job.JobID)
	if stored.Result == nil || stored.Result.Coords == nil {
		t.Errorf("expected stored result, got %+v", stored)
	}

	store.Flush()
	entry := cachedPayload(t, results, "coords:07307")
	if entry == nil || entry.JobID != job.JobID {
		t.Errorf("expected lookup cache entry for the job, got %+v", entry)
	}
	if results.TTL("coords:07307") <= 0 {
		t.Error("lookup cache entry should carry a TTL")
	}

	if len(idem.AcquireCalls) != 1 || len(idem.ReleaseCalls) != 1 {
		t.Errorf("expected lock acquired and released once, got %d/%d", len(idem.AcquireCalls), len(idem.ReleaseCalls))
	}
}

func TestProcessJob_DuplicateDelivery(t *testing.T) {
	jobs := mock.NewJobStore()
	idem := &mock.IdempotencyStore{
		AcquireLockFn: func(ctx context.Context, jobID string) (bool, error) { return false, nil },
	}
	uc, _, _ := newTestProcess(jobs, idem, stubGeocoder{})
	job := newQueuedJob(t, jobs)

	isDup, err := uc.Execute(context.Background(), job)
	if err != nil || !isDup {
		t.Fatalf("expected duplicate, got %v %v", isDup, err)
	}
	if len(jobs.Saved) != 1 {
		t.Errorf("duplicate must not write, got statuses %v", jobs.Saved)
	}
}

func TestProcessJob_LockError(t *testing.T) {
	idem := &mock.IdempotencyStore{
		AcquireLockFn: func(ctx context.Context, jobID string) (bool, error) {
			return false, errors.New("redis down")
		},
	}
	uc, _, _ := newTestProcess(mock.NewJobStore(), idem, stubGeocoder{})

	if _, err := uc.Execute(context.Background(), &domain.GeocodeJob{JobID: "x", Kind: domain.KindCoords}); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestProcessJob_ProviderNotFoundFailsJob(t *testing.T) {
	jobs := mock.NewJobStore()
	uc, results, store := newTestProcess(jobs, &mock.IdempotencyStore{}, stubGeocoder{err: domain.ErrProviderNotFound})
	job := newQueuedJob(t, jobs)

	isDup, err := uc.Execute(context.Background(), job)
	if err != nil || isDup {
		t.Fatalf("provider failures are not delivery errors, got %v %v", isDup, err)
	}

	stored, _ := jobs.Get(context.Background(), job.JobID)
	if stored.Status != domain.StatusFailed || stored.Error == "" {
		t.Errorf("expected failed job with reason, got %+v", stored)
	}
	store.Flush()
	if results.Sets() != 0 {
		t.Error("failed jobs must not populate the lookup cache")
	}
}

func TestProcessJob_InvalidInputFailsJob(t *testing.T) {
	jobs := mock.NewJobStore()
	uc, _, _ := newTestProcess(jobs, &mock.IdempotencyStore{}, stubGeocoder{})
	job := newQueuedJob(t, jobs)
	job.Input = domain.Input{Pincode: "abc"}

	if _, err := uc.Execute(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := jobs.Get(context.Background(), job.JobID)
	if stored.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", stored.Status)
	}
}

func TestProcessJob_AlreadyTerminal(t *testing.T) {
	jobs := mock.NewJobStore()
	uc, _, _ := newTestProcess(jobs, &mock.IdempotencyStore{}, stubGeocoder{})
	job := newQueuedJob(t, jobs)
	failed, _ := job.Fail("publish failed", time.Now())
	if err := jobs.Save(context.Background(), &failed, time.Hour); err != nil {
		t.Fatal(err)
	}

	isDup, err := uc.Execute(context.Background(), job)
	if err != nil || !isDup {
		t.Fatalf("expected the job to be skipped, got %v %v", isDup, err)
	}
	stored, _ := jobs.Get(context.Background(), job.JobID)
	if stored.Status != domain.StatusFailed {
		t.Errorf("terminal record must not change, got %s", stored.Status)
	}
}

func TestProcessJob_StoreFailureDropsLock(t *testing.T) {
	jobs := mock.NewJobStore()
	jobs.SaveFn = func(ctx context.Context, job *domain.GeocodeJob, ttl time.Duration) error {
		return errors.New("redis: i/o timeout")
	}
	idem := &mock.IdempotencyStore{}
	uc, _, _ := newTestProcess(jobs, idem, stubGeocoder{})
	job := &domain.GeocodeJob{JobID: "job-1", Kind: domain.KindCoords, Input: domain.Input{Pincode: "07307"}, Status: domain.StatusQueued}

	isDup, err := uc.Execute(context.Background(), job)
	if err == nil || isDup {
		t.Fatalf("expected retryable error, got %v %v", isDup, err)
	}
	if len(idem.DropCalls) != 1 || idem.DropCalls[0] != "job-1" {
		t.Errorf("expected lock to be dropped for the retry, got %v", idem.DropCalls)
	}
}

func TestProcessJob_RedeliveryAfterFailedTerminalWrite(t *testing.T) {
	jobs := mock.NewJobStore()
	failures := 0
	jobs.SaveErr = func(job *domain.GeocodeJob) error {
		if job.Status == domain.StatusCompleted && failures == 0 {
			failures++
			return errors.New("redis: i/o timeout")
		}
		return nil
	}
	idem := &mock.IdempotencyStore{}
	uc, _, store := newTestProcess(jobs, idem, stubGeocoder{})
	job := newQueuedJob(t, jobs)

	isDup, err := uc.Execute(context.Background(), job)
	if err == nil || isDup {
		t.Fatalf("first delivery: expected retryable error, got %v %v", isDup, err)
	}
	stored, _ := jobs.Get(context.Background(), job.JobID)
	if stored.Status != domain.StatusProcessing {
		t.Fatalf("expected record left in processing, got %s", stored.Status)
	}

	isDup, err = uc.Execute(context.Background(), job)
	if err != nil || isDup {
		t.Fatalf("redelivery: expected the job to finish, got %v %v", isDup, err)
	}
	store.Flush()

	stored, _ = jobs.Get(context.Background(), job.JobID)
	if stored.Status != domain.StatusCompleted || stored.Result == nil {
		t.Errorf("expected completed with result, got %s %+v", stored.Status, stored.Result)
	}
	want := []domain.Status{domain.StatusQueued, domain.StatusProcessing, domain.StatusCompleted}
	if len(jobs.Saved) != len(want) {
		t.Errorf("expected statuses %v, got %v", want, jobs.Saved)
	}
}

func TestProcessJob_ReadFailureDropsLock(t *testing.T) {
	jobs := mock.NewJobStore()
	jobs.GetFn = func(ctx context.Context, jobID string) (*domain.GeocodeJob, error) {
		return nil, errors.New("redis: connection refused")
	}
	idem := &mock.IdempotencyStore{}
	uc, _, _ := newTestProcess(jobs, idem, stubGeocoder{})
	job := &domain.GeocodeJob{JobID: "job-2", Kind: domain.KindCoords, Input: domain.Input{Pincode: "07307"}, Status: domain.StatusQueued}

	isDup, err := uc.Execute(context.Background(), job)
	if err == nil || isDup {
		t.Fatalf("expected retryable error, got %v %v", isDup, err)
	}
	if len(idem.DropCalls) != 1 {
		t.Errorf("expected lock to be dropped, got %v", idem.DropCalls)
	}
}
