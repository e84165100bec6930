package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/repository"
)

// GetJobUsecase handles fetching job status and results.
type GetJobUsecase struct {
	jobs   repository.JobStore
	logger *zap.Logger
}

// NewGetJobUsecase creates a new GetJobUsecase.
func NewGetJobUsecase(jobs repository.JobStore, logger *zap.Logger) *GetJobUsecase {
	return &GetJobUsecase{
		jobs:   jobs,
		logger: logger,
	}
}

// Execute retrieves a job by its ID.
func (uc *GetJobUsecase) Execute(ctx context.Context, jobID string) (*domain.GeocodeJob, error) {
	job, err := uc.jobs.Get(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		uc.logger.Debug("Job not found", zap.String("job_id", jobID))
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}
