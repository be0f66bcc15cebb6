package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/publisher"
	"github.com/Harsh-BH/oplock/internal/repository"
)

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultRaceBackoff  = 100 * time.Millisecond
	defaultMaxWait      = 30 * time.Second
)

// Options tunes the controller's waiting behavior. Zero values take defaults.
type Options struct {
	// DefaultTTL applies when an ExecuteRequest carries no TTL.
	DefaultTTL time.Duration
	// PollInterval is the sleep between lookups while another caller owns the lock.
	PollInterval time.Duration
	// RaceBackoff is the sleep after losing the insert race.
	RaceBackoff time.Duration
	// MaxWait bounds the total time one Execute call spends sleeping on other owners.
	MaxWait time.Duration
	// Now overrides the clock (tests).
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = domain.DefaultTTL
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.RaceBackoff <= 0 {
		o.RaceBackoff = defaultRaceBackoff
	}
	if o.MaxWait <= 0 {
		o.MaxWait = defaultMaxWait
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Controller guarantees that each caller-identified operation runs at most once.
// It holds no in-memory locks: all coordination goes through the LockStore, so
// any number of controllers in any number of processes may share one store.
type Controller struct {
	store  repository.LockStore
	events publisher.Publisher
	logger *zap.Logger
	opts   Options
}

// NewController creates a Controller. A nil publisher disables lifecycle events.
func NewController(
	store repository.LockStore,
	events publisher.Publisher,
	logger *zap.Logger,
	opts Options,
) *Controller {
	if events == nil {
		events = publisher.Nop{}
	}
	return &Controller{
		store:  store,
		events: events,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// Options returns the effective options after defaults were applied.
func (c *Controller) Options() Options {
	return c.opts
}

func (c *Controller) now() time.Time {
	return c.opts.Now()
}

// publish emits a lifecycle event. Failures are logged and otherwise ignored:
// events are observability, never part of an operation's outcome.
func (c *Controller) publish(ctx context.Context, event *domain.LockEvent) {
	event.OccurredAt = c.now()
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Warn("Failed to publish lock event",
			zap.String("event", string(event.Type)),
			zap.String("operation_id", event.OperationID),
			zap.Error(err),
		)
	}
}
