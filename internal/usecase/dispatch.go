package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cache"
	"github.com/Harsh-BH/geocache/internal/cachekey"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/metrics"
	"github.com/Harsh-BH/geocache/internal/probe"
	"github.com/Harsh-BH/geocache/internal/publisher"
	"github.com/Harsh-BH/geocache/internal/repository"
)

const tracerName = "github.com/Harsh-BH/geocache/internal/usecase"

const (
	defaultResultTTL    = 24 * time.Hour
	defaultJobTTL       = time.Hour
	defaultStoreTimeout = 250 * time.Millisecond
)

// TTLs configures how long lookup results and job records are kept.
type TTLs struct {
	Result time.Duration
	Job    time.Duration
}

func (t TTLs) withDefaults() TTLs {
	if t.Result <= 0 {
		t.Result = defaultResultTTL
	}
	if t.Job <= 0 {
		t.Job = defaultJobTTL
	}
	return t
}

// DispatchUsecase hands lookups to the worker pool unless the answer is already
// cached. Concurrent identical lookups may each publish a job; they converge on
// the same cache entry.
type DispatchUsecase struct {
	store     *cache.Store
	jobs      repository.JobStore
	probe     probe.Probe
	publisher publisher.Publisher
	ttls      TTLs
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatchUsecase creates a new DispatchUsecase.
func NewDispatchUsecase(
	store *cache.Store,
	jobs repository.JobStore,
	pr probe.Probe,
	pub publisher.Publisher,
	ttls TTLs,
	logger *zap.Logger,
) *DispatchUsecase {
	return &DispatchUsecase{
		store:     store,
		jobs:      jobs,
		probe:     pr,
		publisher: pub,
		ttls:      ttls.withDefaults(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Execute validates in, answers from cache when possible and otherwise publishes
// a job. It returns domain.ErrBrokerUnavailable when the asynchronous path
// cannot be used.
func (uc *DispatchUsecase) Execute(ctx context.Context, kind domain.Kind, in domain.Input) (*domain.DispatchResult, error) {
	norm, err := in.Normalize(kind)
	if err != nil {
		return nil, err
	}
	return uc.dispatch(ctx, kind, norm, cachekey.Geocode(kind, norm))
}

func (uc *DispatchUsecase) dispatch(ctx context.Context, kind domain.Kind, in domain.Input, key string) (*domain.DispatchResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "usecase.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("geocode.kind", string(kind)), attribute.String("cache.key", key))

	if res := uc.cached(ctx, key); res != nil {
		metrics.DispatchTotal.WithLabelValues(string(kind), "cached").Inc()
		return res, nil
	}

	if !uc.probe.IsAvailable(ctx) {
		metrics.DispatchTotal.WithLabelValues(string(kind), "broker_unavailable").Inc()
		return nil, domain.ErrBrokerUnavailable
	}

	// Generate UUIDv7 (time-ordered)
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}
	now := uc.now()
	job := &domain.GeocodeJob{
		JobID:     id.String(),
		Kind:      kind,
		Input:     in,
		Status:    domain.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The record must exist before a worker can pick the job up. A store failure
	// only costs status visibility, so publishing goes ahead regardless.
	uc.saveJob(ctx, job)

	if err := uc.publisher.Publish(ctx, job); err != nil {
		uc.logger.Warn("Failed to publish job, async path unavailable",
			zap.String("job_id", job.JobID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		if failed, ferr := job.Fail("publish failed", uc.now()); ferr == nil {
			uc.saveJob(context.WithoutCancel(ctx), &failed)
		}
		metrics.DispatchTotal.WithLabelValues(string(kind), "publish_failed").Inc()
		return nil, errors.Join(domain.ErrBrokerUnavailable, err)
	}

	metrics.DispatchTotal.WithLabelValues(string(kind), "queued").Inc()
	uc.logger.Debug("Geocode job queued",
		zap.String("job_id", job.JobID),
		zap.String("kind", string(kind)),
		zap.String("key", key),
	)

	return &domain.DispatchResult{
		JobID:  job.JobID,
		Status: domain.StatusQueued,
	}, nil
}

// cached returns a completed DispatchResult for key, or nil on a miss.
func (uc *DispatchUsecase) cached(ctx context.Context, key string) *domain.DispatchResult {
	var entry domain.CacheEntry[domain.GeoResult]
	if !uc.store.Get(ctx, key, &entry) {
		return nil
	}
	jobID := entry.JobID
	if jobID == "" {
		jobID = key
	}
	res := entry.Payload
	return &domain.DispatchResult{
		JobID:  jobID,
		Status: domain.StatusCompleted,
		Cached: true,
		Result: &res,
	}
}

// remember writes a lookup result under key in the background.
func (uc *DispatchUsecase) remember(ctx context.Context, key, jobID string, res *domain.GeoResult) {
	uc.store.SetAsync(ctx, key, domain.CacheEntry[domain.GeoResult]{
		Key:      key,
		JobID:    jobID,
		Payload:  *res,
		CachedAt: uc.now().Unix(),
	}, uc.ttls.Result)
}

func (uc *DispatchUsecase) saveJob(ctx context.Context, job *domain.GeocodeJob) {
	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()
	if err := uc.jobs.Save(ctx, job, uc.ttls.Job); err != nil {
		uc.logger.Warn("Failed to save job record",
			zap.String("job_id", job.JobID),
			zap.String("status", string(job.Status)),
			zap.Error(err),
		)
	}
}
