package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cachekey"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/metrics"
	"github.com/Harsh-BH/geocache/internal/repository"
)

const (
	defaultPollWindow      = time.Second
	defaultPollInterval    = 100 * time.Millisecond
	defaultProviderTimeout = 5 * time.Second
)

// DirectFunc computes a lookup synchronously against the geocoding providers.
type DirectFunc func(ctx context.Context, kind domain.Kind, in domain.Input) (*domain.GeoResult, error)

// Source tells where a resolved result came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceAsync  Source = "async"
	SourceDirect Source = "direct"
)

// Resolution is the outcome of ResolveUsecase.Execute.
type Resolution struct {
	Result *domain.GeoResult `json:"result"`
	Source Source            `json:"source"`
	JobID  string            `json:"job_id,omitempty"`
}

// ResolveConfig tunes the short poll and the fallback.
type ResolveConfig struct {
	// PollWindow is how long a queued job is given before falling back.
	PollWindow time.Duration
	// PollInterval is how often the job record is re-read inside the window.
	PollInterval time.Duration
	// ProcessingGrace is one extra window granted to a job a worker has already
	// picked up when the first window ends. Zero disables it.
	ProcessingGrace time.Duration
	// ProviderTimeout bounds the synchronous provider call.
	ProviderTimeout time.Duration
}

func (c ResolveConfig) withDefaults() ResolveConfig {
	if c.PollWindow <= 0 {
		c.PollWindow = defaultPollWindow
	}
	if c.PollInterval <= 0 || c.PollInterval > c.PollWindow {
		c.PollInterval = min(defaultPollInterval, c.PollWindow)
	}
	if c.ProcessingGrace < 0 {
		c.ProcessingGrace = 0
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = defaultProviderTimeout
	}
	return c
}

// ResolveOptions are per-request choices.
type ResolveOptions struct {
	// Async allows the broker path. When false the lookup goes cache → direct.
	Async bool
}

// ResolveUsecase is the caller-facing state machine: cache, then the worker
// pool with one bounded wait, then a direct provider call. Every path ends
// within PollWindow (+ ProcessingGrace) + ProviderTimeout.
type ResolveUsecase struct {
	dispatcher *DispatchUsecase
	jobs       repository.JobStore
	cfg        ResolveConfig
	logger     *zap.Logger
}

// NewResolveUsecase creates a new ResolveUsecase.
func NewResolveUsecase(dispatcher *DispatchUsecase, jobs repository.JobStore, cfg ResolveConfig, logger *zap.Logger) *ResolveUsecase {
	return &ResolveUsecase{
		dispatcher: dispatcher,
		jobs:       jobs,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Execute resolves a lookup. Only domain.ErrInvalidInput, domain.ErrProviderNotFound,
// domain.ErrProviderServiceError and the caller's own cancellation are returned;
// cache, broker and worker failures are absorbed by falling back.
func (uc *ResolveUsecase) Execute(ctx context.Context, kind domain.Kind, in domain.Input, direct DirectFunc, opts ResolveOptions) (res *Resolution, err error) {
	norm, err := in.Normalize(kind)
	if err != nil {
		return nil, err
	}
	key := cachekey.Geocode(kind, norm)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "usecase.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("geocode.kind", string(kind)),
		attribute.String("cache.key", key),
		attribute.Bool("geocode.async", opts.Async),
	)

	start := time.Now()
	defer func() {
		source := "error"
		if res != nil {
			source = string(res.Source)
		} else if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("geocode.source", source))
		metrics.ResolveTotal.WithLabelValues(string(kind), source).Inc()
		metrics.ResolveDuration.WithLabelValues(string(kind), source).Observe(time.Since(start).Seconds())
	}()

	if !opts.Async {
		if hit := uc.dispatcher.cached(ctx, key); hit != nil {
			return &Resolution{Result: hit.Result, Source: SourceCache, JobID: hit.JobID}, nil
		}
		return uc.fallback(ctx, kind, norm, key, "", direct)
	}

	dispatched, err := uc.dispatcher.dispatch(ctx, kind, norm, key)
	if err != nil {
		uc.logger.Debug("Async path unavailable, falling back",
			zap.String("kind", string(kind)),
			zap.String("key", key),
			zap.Error(err),
		)
		return uc.fallback(ctx, kind, norm, key, "", direct)
	}
	if dispatched.Cached {
		return &Resolution{Result: dispatched.Result, Source: SourceCache, JobID: dispatched.JobID}, nil
	}

	job, err := uc.shortPoll(ctx, dispatched.JobID)
	if err == nil {
		return &Resolution{Result: job.Result, Source: SourceAsync, JobID: job.JobID}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	uc.logger.Debug("Job did not complete in time, falling back",
		zap.String("job_id", dispatched.JobID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return uc.fallback(ctx, kind, norm, key, dispatched.JobID, direct)
}

// shortPoll re-reads the job record until it is terminal or the window closes.
// A completed job is returned; anything else is an error that triggers fallback.
func (uc *ResolveUsecase) shortPoll(ctx context.Context, jobID string) (*domain.GeocodeJob, error) {
	deadline := time.NewTimer(uc.cfg.PollWindow)
	defer deadline.Stop()
	ticker := time.NewTicker(uc.cfg.PollInterval)
	defer ticker.Stop()

	graced := false
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-ticker.C:
			job := uc.readJob(ctx, jobID)
			if done, err := terminal(job); done {
				return job, err
			}

		case <-deadline.C:
			job := uc.readJob(ctx, jobID)
			if done, err := terminal(job); done {
				return job, err
			}
			if !graced && uc.cfg.ProcessingGrace > 0 && job != nil && job.Status == domain.StatusProcessing {
				graced = true
				deadline.Reset(uc.cfg.ProcessingGrace)
				continue
			}
			status := domain.Status("unknown")
			if job != nil {
				status = job.Status
			}
			return nil, fmt.Errorf("%w: job %s still %s", domain.ErrJobTimedOut, jobID, status)
		}
	}
}

func terminal(job *domain.GeocodeJob) (bool, error) {
	if job == nil {
		return false, nil
	}
	switch job.Status {
	case domain.StatusCompleted:
		if job.Result == nil {
			return true, fmt.Errorf("job %s completed without a result", job.JobID)
		}
		return true, nil
	case domain.StatusFailed:
		return true, fmt.Errorf("job %s failed: %s", job.JobID, job.Error)
	}
	return false, nil
}

// readJob returns the job record, or nil when it cannot be read yet.
func (uc *ResolveUsecase) readJob(ctx context.Context, jobID string) *domain.GeocodeJob {
	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	job, err := uc.jobs.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, domain.ErrJobNotFound) {
			uc.logger.Debug("Job record read failed", zap.String("job_id", jobID), zap.Error(err))
		}
		return nil
	}
	return job
}

type directOutcome struct {
	res *domain.GeoResult
	err error
}

// fallback calls direct on a context detached from the caller's cancellation, so
// an aborted request still lets the provider answer and the cache be populated.
func (uc *ResolveUsecase) fallback(ctx context.Context, kind domain.Kind, in domain.Input, key, jobID string, direct DirectFunc) (*Resolution, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "usecase.Fallback")
	defer span.End()

	done := make(chan directOutcome, 1)
	go func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.ProviderTimeout)
		defer cancel()

		res, err := direct(dctx, kind, in)
		if err == nil && res == nil {
			err = domain.ErrProviderNotFound
		}
		if err == nil {
			uc.dispatcher.remember(dctx, key, jobID, res)
		}
		done <- directOutcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, providerError(out.err)
		}
		return &Resolution{Result: out.res, Source: SourceDirect, JobID: jobID}, nil
	}
}

// providerError makes sure only the two provider sentinels leave the fallback.
func providerError(err error) error {
	if errors.Is(err, domain.ErrProviderNotFound) || errors.Is(err, domain.ErrProviderServiceError) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderServiceError, err)
}
