// Package wire assembles the lock store, event publisher and controller from
// configuration. Both binaries start here.
package wire

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/config"
	"github.com/Harsh-BH/oplock/internal/publisher"
	"github.com/Harsh-BH/oplock/internal/repository"
	"github.com/Harsh-BH/oplock/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/oplock/internal/repository/redis"
	"github.com/Harsh-BH/oplock/internal/repository/sqlite"
	"github.com/Harsh-BH/oplock/internal/usecase"
)

// Store is a lock store the process owns and must close.
type Store interface {
	repository.LockStore
	repository.Pinger
	io.Closer
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck = func(ctx context.Context) error

// Backend is the assembled runtime: store, events and controller.
type Backend struct {
	Store      Store
	Events     publisher.Publisher
	Controller *usecase.Controller

	// Checks maps dependency names to their health probes.
	Checks map[string]HealthCheck
}

// Open connects to the configured store and broker and builds the controller.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	store, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	events, err := OpenPublisher(cfg.Events, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	b := &Backend{
		Store:      store,
		Events:     events,
		Controller: NewController(cfg.Lock, store, events, logger),
		Checks:     map[string]HealthCheck{cfg.Store.Driver: store.Ping},
	}
	if p, ok := events.(repository.Pinger); ok {
		b.Checks["rabbitmq"] = p.Ping
	}
	return b, nil
}

// Close flushes the publisher and releases the store.
func (b *Backend) Close() error {
	return errors.Join(b.Events.Close(), b.Store.Close())
}

// OpenStore opens the lock store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := postgres.NewLockStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("Connected to PostgreSQL lock store")
		return store, nil

	case config.DriverRedis:
		client, err := redisrepo.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to Redis lock store", zap.String("key_prefix", cfg.RedisKeyPrefix))
		return redisrepo.NewLockStore(client, cfg.RedisKeyPrefix), nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("Opened SQLite lock store", zap.String("path", cfg.SQLitePath))
		return store, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// OpenPublisher returns the RabbitMQ publisher when events are enabled and a
// no-op publisher otherwise.
func OpenPublisher(cfg config.EventsConfig, logger *zap.Logger) (publisher.Publisher, error) {
	if !cfg.Enabled {
		return publisher.Nop{}, nil
	}
	pub, err := publisher.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq publisher: %w", err)
	}
	logger.Info("Connected to RabbitMQ", zap.String("exchange", cfg.Exchange))
	return pub, nil
}

// NewController builds a controller tuned by cfg.
func NewController(cfg config.LockConfig, store repository.LockStore, events publisher.Publisher, logger *zap.Logger) *usecase.Controller {
	return usecase.NewController(store, events, logger, usecase.Options{
		DefaultTTL:   cfg.DefaultTTL,
		PollInterval: cfg.PollInterval,
		RaceBackoff:  cfg.RaceBackoff,
		MaxWait:      cfg.MaxWait,
	})
}
