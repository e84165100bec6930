package domain

import (
	"fmt"
	"time"
)

// Kind identifies which geocoding lookup a job performs.
type Kind string

const (
	KindCoords         Kind = "coords"
	KindCity           Kind = "city"
	KindReverse        Kind = "reverse"
	KindReverseAddress Kind = "reverse-address"
)

// IsValid checks if the kind is supported.
func (k Kind) IsValid() bool {
	switch k {
	case KindCoords, KindCity, KindReverse, KindReverseAddress:
		return true
	}
	return false
}

// NeedsPincode reports whether the lookup takes a pincode (as opposed to coordinates).
func (k Kind) NeedsPincode() bool {
	return k == KindCoords || k == KindCity
}

// Status represents the lifecycle state of a geocode job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	}
	return 0
}

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job in status s may move to next.
// Transitions only move forward and terminal states are final.
func (s Status) CanTransition(next Status) bool {
	if next.rank() == 0 {
		return false
	}
	if s == "" {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoResult is the outcome of a lookup. Which fields are set depends on the kind.
type GeoResult struct {
	Coords   *Coordinates `json:"coords,omitempty"`
	City     string       `json:"city,omitempty"`
	State    string       `json:"state,omitempty"`
	Pincode  string       `json:"pincode,omitempty"`
	Address  string       `json:"address,omitempty"`
	Provider string       `json:"provider,omitempty"`
}

// GeocodeJob represents one unit of asynchronous geocoding work.
type GeocodeJob struct {
	JobID     string     `json:"job_id"`
	Kind      Kind       `json:"kind"`
	Input     Input      `json:"input"`
	Status    Status     `json:"status"`
	Result    *GeoResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Advance returns a copy of the job moved to next, or ErrInvalidTransition.
func (j GeocodeJob) Advance(next Status, at time.Time) (GeocodeJob, error) {
	if !j.Status.CanTransition(next) {
		return j, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = at
	return j, nil
}

// Complete returns a copy of the job in the completed state carrying result.
func (j GeocodeJob) Complete(result *GeoResult, at time.Time) (GeocodeJob, error) {
	next, err := j.Advance(StatusCompleted, at)
	if err != nil {
		return j, err
	}
	next.Result = result
	next.Error = ""
	return next, nil
}

// Fail returns a copy of the job in the failed state carrying reason.
func (j GeocodeJob) Fail(reason string, at time.Time) (GeocodeJob, error) {
	next, err := j.Advance(StatusFailed, at)
	if err != nil {
		return j, err
	}
	next.Result = nil
	next.Error = reason
	return next, nil
}

// JobMessage wraps a job received from the broker with its acknowledgement callbacks.
type JobMessage struct {
	Job  *GeocodeJob
	Ack  func() error
	Nack func(requeue bool) error

	// Redelivered is set when the broker has handed this message out before.
	Redelivered bool
}

// DispatchResult describes the outcome of handing a lookup to the dispatcher.
type DispatchResult struct {
	JobID  string     `json:"job_id"`
	Status Status     `json:"status"`
	Cached bool       `json:"cached"`
	Result *GeoResult `json:"result,omitempty"`
}

// CacheEntry is the envelope stored in the result store. CachedAt is embedded in the
// value so readers can re-validate freshness independently of the store's TTL.
type CacheEntry[T any] struct {
	Key      string `json:"key"`
	JobID    string `json:"job_id,omitempty"`
	Payload  T      `json:"payload"`
	CachedAt int64  `json:"cached_at"`
}
