//go:build integration

package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harsh-BH/oplock/internal/domain"
)

// Integration tests: require a reachable Redis.
// Run with: OPLOCK_TEST_REDIS_URL=redis://localhost:6379/15 go test -tags integration ./internal/repository/redis/

func newIntegrationStore(t *testing.T) *LockStore {
	t.Helper()
	url := os.Getenv("OPLOCK_TEST_REDIS_URL")
	if url == "" {
		t.Skip("OPLOCK_TEST_REDIS_URL not set, skipping integration test")
	}
	client, err := NewClient(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	// Isolate each test under its own prefix.
	return NewLockStore(client, "oplock-test-"+uuid.NewString()+":")
}

func TestLockStore_Lifecycle(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	lock := &domain.OperationLock{
		ID:            "op-1",
		OperationType: "sync",
		Status:        domain.StatusProcessing,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Hour),
	}
	require.NoError(t, store.InsertIfAbsent(ctx, lock))
	assert.ErrorIs(t, store.InsertIfAbsent(ctx, lock), domain.ErrLockExists)

	require.NoError(t, store.UpdateByID(ctx, "op-1", domain.FailedPatch("boom", now)))
	require.NoError(t, store.UpdateByID(ctx, "op-1", domain.CompletedPatch(json.RawMessage(`"ok"`), now)))

	got, err := store.FindByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, `"ok"`, string(got.Result))
	assert.Empty(t, got.ErrorMessage)

	require.NoError(t, store.DeleteByID(ctx, "op-1"))
	assert.ErrorIs(t, store.DeleteByID(ctx, "op-1"), domain.ErrLockNotFound)
	_, err = store.FindByID(ctx, "op-1")
	assert.ErrorIs(t, err, domain.ErrLockNotFound)
	assert.ErrorIs(t, store.UpdateByID(ctx, "op-1", domain.FailedPatch("x", now)), domain.ErrLockNotFound)
}

func TestLockStore_DeleteExpiredIsExclusive(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for id, expires := range map[string]time.Time{
		"stale":    now.Add(-time.Second),
		"boundary": now,
		"live":     now.Add(time.Hour),
	} {
		require.NoError(t, store.InsertIfAbsent(ctx, &domain.OperationLock{
			ID: id, Status: domain.StatusProcessing, CreatedAt: now, ExpiresAt: expires,
		}))
	}

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.FindByID(ctx, "boundary")
	assert.NoError(t, err)
	_, err = store.FindByID(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrLockNotFound)

	_ = store.DeleteByID(ctx, "boundary")
	_ = store.DeleteByID(ctx, "live")
}
