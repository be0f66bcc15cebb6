package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

var _ repository.LockStore = (*LockStore)(nil)

// LockStore is a SQLite-backed repository.LockStore. Timestamps are stored as
// unix milliseconds.
type LockStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*LockStore, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	store := NewLockStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewLockStore wraps an already opened database.
func NewLockStore(db *sql.DB) *LockStore {
	return &LockStore{db: db}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *LockStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (s *LockStore) InsertIfAbsent(ctx context.Context, lock *domain.OperationLock) error {
	query := `
		INSERT INTO operation_locks (id, operation_type, status, request_params, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		lock.ID, lock.OperationType, string(lock.Status), nullJSON(lock.RequestParams),
		nullString(lock.UserID), lock.CreatedAt.UnixMilli(), lock.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return domain.ErrLockExists
		}
		return fmt.Errorf("sqlite: insert lock: %w", err)
	}
	return nil
}

func (s *LockStore) FindByID(ctx context.Context, id string) (*domain.OperationLock, error) {
	query := `
		SELECT id, operation_type, status, request_params, user_id, result,
		       error_message, created_at, completed_at, expires_at
		FROM operation_locks
		WHERE id = ?`

	var (
		lock         domain.OperationLock
		status       string
		params       sql.NullString
		userID       sql.NullString
		result       sql.NullString
		errorMessage sql.NullString
		createdAt    int64
		completedAt  sql.NullInt64
		expiresAt    int64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&lock.ID, &lock.OperationType, &status, &params, &userID, &result,
		&errorMessage, &createdAt, &completedAt, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find lock: %w", err)
	}

	lock.Status = domain.LockStatus(status)
	if params.Valid {
		lock.RequestParams = json.RawMessage(params.String)
	}
	if result.Valid {
		lock.Result = json.RawMessage(result.String)
	}
	lock.UserID = userID.String
	lock.ErrorMessage = errorMessage.String
	lock.CreatedAt = fromMillis(createdAt)
	lock.ExpiresAt = fromMillis(expiresAt)
	if completedAt.Valid {
		at := fromMillis(completedAt.Int64)
		lock.CompletedAt = &at
	}
	return &lock, nil
}

func (s *LockStore) UpdateByID(ctx context.Context, id string, patch domain.LockPatch) error {
	query := `
		UPDATE operation_locks
		SET status = ?, result = ?, error_message = ?, completed_at = ?
		WHERE id = ?`

	var result, errorMessage any
	switch patch.Status {
	case domain.StatusCompleted:
		result = nullJSON(patch.Result)
	case domain.StatusFailed:
		errorMessage = patch.ErrorMessage
	}

	res, err := s.db.ExecContext(ctx, query,
		string(patch.Status), result, errorMessage, patch.CompletedAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update lock: %w", err)
	}
	return expectRow(res)
}

func (s *LockStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM operation_locks WHERE expires_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired locks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}

func (s *LockStore) DeleteByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM operation_locks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete lock: %w", err)
	}
	return expectRow(res)
}

// Ping checks the database handle.
func (s *LockStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *LockStore) Close() error {
	return s.db.Close()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrLockNotFound
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

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
