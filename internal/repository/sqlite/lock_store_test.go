package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harsh-BH/oplock/internal/domain"
)

func setupTestStore(t *testing.T) *LockStore {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func processingLock(id string, now time.Time, ttl time.Duration) *domain.OperationLock {
	return &domain.OperationLock{
		ID:            id,
		OperationType: "close_cash",
		Status:        domain.StatusProcessing,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

func TestLockStore_InsertIfAbsent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	lock := processingLock("op-1", now, time.Hour)
	lock.UserID = "cashier-4"
	lock.RequestParams = json.RawMessage(`{"register":4}`)

	require.NoError(t, store.InsertIfAbsent(ctx, lock))
	assert.ErrorIs(t, store.InsertIfAbsent(ctx, processingLock("op-1", now, time.Hour)), domain.ErrLockExists)

	got, err := store.FindByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, lock, got)
}

func TestLockStore_ConcurrentInsertHasOneWinner(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "locks.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.InsertIfAbsent(ctx, processingLock("contended", now, time.Hour))
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		switch {
		case err == nil:
			won++
		case assert.ErrorIs(t, err, domain.ErrLockExists):
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, lost)
}

func TestLockStore_UpdateByID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.InsertIfAbsent(ctx, processingLock("op-1", now, time.Hour)))

	require.NoError(t, store.UpdateByID(ctx, "op-1", domain.FailedPatch("card declined", now.Add(time.Second))))
	got, err := store.FindByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "card declined", got.ErrorMessage)
	assert.Nil(t, got.Result)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(now.Add(time.Second)))

	// Force-completing a failed row clears its error.
	require.NoError(t, store.UpdateByID(ctx, "op-1", domain.CompletedPatch(nil, now.Add(2*time.Second))))
	got, err = store.FindByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, json.RawMessage("null"), got.Result)
	assert.Empty(t, got.ErrorMessage)

	assert.ErrorIs(t, store.UpdateByID(ctx, "missing", domain.FailedPatch("x", now)), domain.ErrLockNotFound)
}

func TestLockStore_FindByID_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrLockNotFound)
}

func TestLockStore_DeleteExpired(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertIfAbsent(ctx, processingLock("stale", now, -time.Minute)))
	require.NoError(t, store.InsertIfAbsent(ctx, processingLock("boundary", now, 0)))
	require.NoError(t, store.InsertIfAbsent(ctx, processingLock("live", now, time.Minute)))
	require.NoError(t, store.UpdateByID(ctx, "stale", domain.CompletedPatch(json.RawMessage(`1`), now)))

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.FindByID(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrLockNotFound)
	_, err = store.FindByID(ctx, "boundary")
	assert.NoError(t, err)
	_, err = store.FindByID(ctx, "live")
	assert.NoError(t, err)
}

func TestLockStore_DeleteByID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertIfAbsent(ctx, processingLock("op-1", time.Now().UTC(), time.Hour)))

	require.NoError(t, store.DeleteByID(ctx, "op-1"))
	assert.ErrorIs(t, store.DeleteByID(ctx, "op-1"), domain.ErrLockNotFound)

	// The id is free again.
	assert.NoError(t, store.InsertIfAbsent(ctx, processingLock("op-1", time.Now().UTC(), time.Hour)))
}

func TestLockStore_MigrateIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Ping(context.Background()))
}
