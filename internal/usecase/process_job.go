package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cache"
	"github.com/Harsh-BH/geocache/internal/cachekey"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/geocoder"
	"github.com/Harsh-BH/geocache/internal/metrics"
	"github.com/Harsh-BH/geocache/internal/repository"
)

// ProcessJobUsecase is the worker side of a geocode job.
type ProcessJobUsecase struct {
	jobs            repository.JobStore
	idempotent      repository.IdempotencyStore
	geocoder        geocoder.Geocoder
	store           *cache.Store
	ttls            TTLs
	providerTimeout time.Duration
	logger          *zap.Logger
	now             func() time.Time
}

// NewProcessJobUsecase creates a new ProcessJobUsecase.
func NewProcessJobUsecase(
	jobs repository.JobStore,
	idempotent repository.IdempotencyStore,
	gc geocoder.Geocoder,
	store *cache.Store,
	ttls TTLs,
	providerTimeout time.Duration,
	logger *zap.Logger,
) *ProcessJobUsecase {
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderTimeout
	}
	return &ProcessJobUsecase{
		jobs:            jobs,
		idempotent:      idempotent,
		geocoder:        gc,
		store:           store,
		ttls:            ttls.withDefaults(),
		providerTimeout: providerTimeout,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Execute processes a single job: idempotency check → processing → provider call →
// terminal status. Returns (isDuplicate, error). An error means the job record
// could not be written and the delivery should be retried; provider failures are
// recorded on the job and are not errors.
func (uc *ProcessJobUsecase) Execute(ctx context.Context, job *domain.GeocodeJob) (bool, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "usecase.ProcessJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", job.JobID), attribute.String("geocode.kind", string(job.Kind)))

	// Step 1: Idempotency check
	acquired, err := uc.idempotent.AcquireLock(ctx, job.JobID)
	if err != nil {
		uc.logger.Error("Failed to acquire idempotency lock", zap.Error(err), zap.String("job_id", job.JobID))
		return false, err
	}
	if !acquired {
		uc.logger.Info("Duplicate message detected, skipping", zap.String("job_id", job.JobID))
		return true, nil
	}

	start := time.Now()

	// Step 2: Mark processing. The stored record wins over the message: a
	// terminal record means another delivery finished the job, and a record
	// already in processing is a retry after a failed terminal write.
	current, err := uc.load(ctx, job)
	if err != nil {
		return false, err
	}
	processing := current
	if current.Status != domain.StatusProcessing {
		processing, err = current.Advance(domain.StatusProcessing, uc.now())
		if err != nil {
			uc.logger.Info("Job already finished, skipping", zap.String("job_id", job.JobID), zap.Error(err))
			return true, nil
		}
		if dup, err := uc.save(ctx, &processing); dup || err != nil {
			return dup, err
		}
	} else {
		uc.logger.Info("Resuming job left in processing", zap.String("job_id", job.JobID))
	}

	// Step 3: Geocode
	final := uc.geocode(ctx, processing)

	// Step 4: Store terminal status
	if dup, err := uc.save(ctx, &final); dup || err != nil {
		return dup, err
	}
	if final.Status == domain.StatusCompleted {
		key := cachekey.Geocode(final.Kind, final.Input)
		uc.store.SetAsync(ctx, key, domain.CacheEntry[domain.GeoResult]{
			Key:      key,
			JobID:    final.JobID,
			Payload:  *final.Result,
			CachedAt: uc.now().Unix(),
		}, uc.ttls.Result)
	}

	// Step 5: Release idempotency lock (set TTL for eventual cleanup)
	_ = uc.idempotent.ReleaseLock(ctx, job.JobID)

	metrics.JobsProcessed.WithLabelValues(string(job.Kind), string(final.Status)).Inc()
	metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())
	uc.logger.Info("Job processed",
		zap.String("job_id", job.JobID),
		zap.String("kind", string(job.Kind)),
		zap.String("status", string(final.Status)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return false, nil
}

// geocode runs the provider call and returns the job in its terminal state.
func (uc *ProcessJobUsecase) geocode(ctx context.Context, job domain.GeocodeJob) domain.GeocodeJob {
	var (
		res *domain.GeoResult
		err error
	)
	in, err := job.Input.Normalize(job.Kind)
	if err == nil {
		job.Input = in
		pctx, cancel := context.WithTimeout(ctx, uc.providerTimeout)
		res, err = uc.geocoder.Geocode(pctx, job.Kind, in)
		cancel()
		if err == nil && res == nil {
			err = domain.ErrProviderNotFound
		}
	}

	if err == nil {
		done, _ := job.Complete(res, uc.now())
		return done
	}

	uc.logger.Warn("Geocode failed", zap.String("job_id", job.JobID), zap.String("kind", string(job.Kind)), zap.Error(err))
	failed, _ := job.Fail(failureReason(err), uc.now())
	return failed
}

// load returns the stored record for job, or job itself when none exists yet.
// A read failure drops the lock so the redelivery can run.
func (uc *ProcessJobUsecase) load(ctx context.Context, job *domain.GeocodeJob) (domain.GeocodeJob, error) {
	stored, err := uc.jobs.Get(ctx, job.JobID)
	switch {
	case err == nil:
		return *stored, nil
	case errors.Is(err, domain.ErrJobNotFound):
		current := *job
		if current.Status == "" || current.Status == domain.StatusProcessing {
			current.Status = domain.StatusQueued
		}
		return current, nil
	}
	uc.logger.Error("Failed to read job record", zap.String("job_id", job.JobID), zap.Error(err))
	if derr := uc.idempotent.DropLock(context.WithoutCancel(ctx), job.JobID); derr != nil {
		uc.logger.Warn("Failed to drop idempotency lock", zap.String("job_id", job.JobID), zap.Error(derr))
	}
	return domain.GeocodeJob{}, fmt.Errorf("load job %s: %w", job.JobID, err)
}

// save writes job. ErrInvalidTransition means another delivery got further and is
// reported as a duplicate. Other failures drop the lock so the retry can run.
func (uc *ProcessJobUsecase) save(ctx context.Context, job *domain.GeocodeJob) (bool, error) {
	err := uc.jobs.Save(ctx, job, uc.ttls.Job)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		uc.logger.Info("Job record moved on, skipping", zap.String("job_id", job.JobID), zap.Error(err))
		return true, nil
	}
	uc.logger.Error("Failed to save job record",
		zap.String("job_id", job.JobID),
		zap.String("status", string(job.Status)),
		zap.Error(err),
	)
	if derr := uc.idempotent.DropLock(context.WithoutCancel(ctx), job.JobID); derr != nil {
		uc.logger.Warn("Failed to drop idempotency lock", zap.String("job_id", job.JobID), zap.Error(derr))
	}
	return false, fmt.Errorf("save job %s: %w", job.JobID, err)
}

// failureReason is the caller-facing error text stored on a failed job.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, domain.ErrProviderNotFound):
		return "no result for this location"
	default:
		return "geocoding service unavailable"
	}
}
