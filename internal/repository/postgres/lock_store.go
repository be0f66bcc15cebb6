package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Ensure LockStore implements repository.LockStore.
var _ repository.LockStore = (*LockStore)(nil)

// LockStore is a PostgreSQL-backed repository.LockStore.
type LockStore struct {
	pool *pgxpool.Pool
}

// NewLockStore creates a new PostgreSQL-backed lock store.
func NewLockStore(pool *pgxpool.Pool) *LockStore {
	return &LockStore{pool: pool}
}

// Connect opens a pool for dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the operation_locks table and its expiry index if missing.
func (s *LockStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *LockStore) InsertIfAbsent(ctx context.Context, lock *domain.OperationLock) error {
	query := `
		INSERT INTO operation_locks (id, operation_type, status, request_params, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		lock.ID, lock.OperationType, lock.Status, nullJSON(lock.RequestParams),
		nullString(lock.UserID), lock.CreatedAt, lock.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrLockExists
		}
		return fmt.Errorf("postgres: insert lock: %w", err)
	}
	return nil
}

func (s *LockStore) FindByID(ctx context.Context, id string) (*domain.OperationLock, error) {
	query := `
		SELECT id, operation_type, status, request_params, user_id, result,
		       error_message, created_at, completed_at, expires_at
		FROM operation_locks
		WHERE id = $1`

	var (
		lock         domain.OperationLock
		params       []byte
		result       []byte
		userID       *string
		errorMessage *string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&lock.ID, &lock.OperationType, &lock.Status, &params, &userID, &result,
		&errorMessage, &lock.CreatedAt, &lock.CompletedAt, &lock.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrLockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find lock: %w", err)
	}

	if params != nil {
		lock.RequestParams = json.RawMessage(params)
	}
	if result != nil {
		lock.Result = json.RawMessage(result)
	}
	if userID != nil {
		lock.UserID = *userID
	}
	if errorMessage != nil {
		lock.ErrorMessage = *errorMessage
	}
	lock.CreatedAt = lock.CreatedAt.UTC()
	lock.ExpiresAt = lock.ExpiresAt.UTC()
	if lock.CompletedAt != nil {
		at := lock.CompletedAt.UTC()
		lock.CompletedAt = &at
	}
	return &lock, nil
}

func (s *LockStore) UpdateByID(ctx context.Context, id string, patch domain.LockPatch) error {
	query := `
		UPDATE operation_locks
		SET status = $1, result = $2, error_message = $3, completed_at = $4
		WHERE id = $5`

	var result any
	var errorMessage any
	switch patch.Status {
	case domain.StatusCompleted:
		result = nullJSON(patch.Result)
	case domain.StatusFailed:
		errorMessage = patch.ErrorMessage
	}

	tag, err := s.pool.Exec(ctx, query, patch.Status, result, errorMessage, patch.CompletedAt, id)
	if err != nil {
		return fmt.Errorf("postgres: update lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLockNotFound
	}
	return nil
}

func (s *LockStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM operation_locks WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *LockStore) DeleteByID(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM operation_locks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLockNotFound
	}
	return nil
}

// Ping checks the pool's connectivity.
func (s *LockStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *LockStore) Close() error {
	s.pool.Close()
	return nil
}

// nullJSON maps an empty payload to SQL NULL. Raw JSON is sent as text so
// the server parses it into jsonb as-is.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
