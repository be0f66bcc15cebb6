package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/publisher"
)

// Ensure MockPublisher implements publisher.Publisher.
var _ publisher.Publisher = (*MockPublisher)(nil)

// MockPublisher records published lock events for assertions.
type MockPublisher struct {
	mu        sync.Mutex
	Published []*domain.LockEvent
	PublishFn func(ctx context.Context, event *domain.LockEvent) error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, event *domain.LockEvent) error {
	m.mu.Lock()
	m.Published = append(m.Published, event)
	m.mu.Unlock()
	if m.PublishFn != nil {
		return m.PublishFn(ctx, event)
	}
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// Types returns the published event types in order.
func (m *MockPublisher) Types() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]domain.EventType, 0, len(m.Published))
	for _, ev := range m.Published {
		types = append(types, ev.Type)
	}
	return types
}
