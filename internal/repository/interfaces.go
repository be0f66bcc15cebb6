package repository

import (
	"context"
	"time"

	"github.com/Harsh-BH/oplock/internal/domain"
)

// LockStore is the persistence contract the idempotency controller relies on.
// Correctness depends on InsertIfAbsent being atomic and on every other
// mutation touching a single row atomically. Implementations must be safe for
// concurrent use across goroutines and processes.
type LockStore interface {
	// InsertIfAbsent creates the row, or returns domain.ErrLockExists when one
	// with the same id is already present.
	InsertIfAbsent(ctx context.Context, lock *domain.OperationLock) error

	// FindByID returns the row or domain.ErrLockNotFound.
	FindByID(ctx context.Context, id string) (*domain.OperationLock, error)

	// UpdateByID applies a terminal transition to the row.
	// Returns domain.ErrLockNotFound if the row does not exist.
	UpdateByID(ctx context.Context, id string, patch domain.LockPatch) error

	// DeleteExpired removes every row whose expires_at is strictly before the
	// given instant, regardless of status, and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// DeleteByID removes the row. Returns domain.ErrLockNotFound if absent.
	DeleteByID(ctx context.Context, id string) error
}

// Pinger is implemented by stores that can report backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
