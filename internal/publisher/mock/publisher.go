package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/publisher"
)

// Ensure MockPublisher implements publisher.Publisher.
var _ publisher.Publisher = (*MockPublisher)(nil)

// MockPublisher is a mock message publisher for testing.
type MockPublisher struct {
	mu        sync.Mutex
	Published []*domain.GeocodeJob
	PublishFn func(ctx context.Context, job *domain.GeocodeJob) error

	Consumers int
	InspectFn func(ctx context.Context) (int, error)
}

// NewMockPublisher creates a new mock publisher with one attached consumer.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Consumers: 1}
}

func (m *MockPublisher) Publish(ctx context.Context, job *domain.GeocodeJob) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.Published = append(m.Published, &cp)
	return nil
}

func (m *MockPublisher) Inspect(ctx context.Context) (int, error) {
	if m.InspectFn != nil {
		return m.InspectFn(ctx)
	}
	return m.Consumers, nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// Count returns how many jobs were published.
func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published)
}
