package publisher

import (
	"context"

	"github.com/Harsh-BH/oplock/internal/domain"
)

// Publisher emits lock lifecycle events to interested consumers.
// Publish must not block the caller on broker round-trips.
type Publisher interface {
	Publish(ctx context.Context, event *domain.LockEvent) error
	Close() error
}

// Nop discards every event. Used when event publishing is disabled.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) Publish(context.Context, *domain.LockEvent) error { return nil }

func (Nop) Close() error { return nil }
