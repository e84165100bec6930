package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/geocache/internal/cachekey"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/repository"
)

var _ repository.JobStore = (*jobStore)(nil)

const maxTxRetries = 5

type jobStore struct {
	client *goredis.Client
}

// NewJobStore creates a Redis-backed job store. Writes use WATCH/MULTI so that a
// job's status never regresses, whatever order the API and workers write in.
func NewJobStore(client *goredis.Client) repository.JobStore {
	return &jobStore{client: client}
}

func (s *jobStore) Save(ctx context.Context, job *domain.GeocodeJob, ttl time.Duration) error {
	key := cachekey.Job(job.JobID)
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redis: marshal job: %w", err)
	}

	txf := func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			var existing domain.GeocodeJob
			if err := json.Unmarshal(cur, &existing); err == nil && !existing.Status.CanTransition(job.Status) {
				return fmt.Errorf("%w: %s -> %s (job_id=%s)", domain.ErrInvalidTransition, existing.Status, job.Status, job.JobID)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, body, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("redis: save job: %w", err)
		}
		return err
	}
	return fmt.Errorf("redis: save job %s: too much contention", job.JobID)
}

func (s *jobStore) Get(ctx context.Context, jobID string) (*domain.GeocodeJob, error) {
	body, err := s.client.Get(ctx, cachekey.Job(jobID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get job: %w", err)
	}

	var job domain.GeocodeJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("redis: decode job %s: %w", jobID, err)
	}
	return &job, nil
}
