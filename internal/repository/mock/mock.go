package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/repository"
)

var _ repository.LockStore = (*LockStore)(nil)

// LockStore is an in-memory test double for repository.LockStore.
// Without hooks it behaves like a real store: inserts are atomic and
// duplicate ids yield domain.ErrLockExists. Hooks replace the default
// behavior for error injection; the Default* methods stay reachable from them.
type LockStore struct {
	mu    sync.Mutex
	locks map[string]*domain.OperationLock

	InsertIfAbsentFn func(ctx context.Context, lock *domain.OperationLock) error
	FindByIDFn       func(ctx context.Context, id string) (*domain.OperationLock, error)
	UpdateByIDFn     func(ctx context.Context, id string, patch domain.LockPatch) error
	DeleteExpiredFn  func(ctx context.Context, before time.Time) (int64, error)
	DeleteByIDFn     func(ctx context.Context, id string) error

	// Recorded calls for assertions.
	Inserts       []*domain.OperationLock
	Finds         []string
	Updates       []LockUpdate
	ExpiredSweeps []time.Time
	Deletes       []string
}

// LockUpdate records one UpdateByID call.
type LockUpdate struct {
	ID    string
	Patch domain.LockPatch
}

// NewLockStore creates an empty in-memory store.
func NewLockStore() *LockStore {
	return &LockStore{locks: make(map[string]*domain.OperationLock)}
}

func (m *LockStore) InsertIfAbsent(ctx context.Context, lock *domain.OperationLock) error {
	m.mu.Lock()
	m.Inserts = append(m.Inserts, cloneLock(lock))
	m.mu.Unlock()
	if m.InsertIfAbsentFn != nil {
		return m.InsertIfAbsentFn(ctx, lock)
	}
	return m.DefaultInsertIfAbsent(lock)
}

func (m *LockStore) FindByID(ctx context.Context, id string) (*domain.OperationLock, error) {
	m.mu.Lock()
	m.Finds = append(m.Finds, id)
	m.mu.Unlock()
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, id)
	}
	return m.DefaultFindByID(id)
}

func (m *LockStore) UpdateByID(ctx context.Context, id string, patch domain.LockPatch) error {
	m.mu.Lock()
	m.Updates = append(m.Updates, LockUpdate{ID: id, Patch: patch})
	m.mu.Unlock()
	if m.UpdateByIDFn != nil {
		return m.UpdateByIDFn(ctx, id, patch)
	}
	return m.DefaultUpdateByID(id, patch)
}

func (m *LockStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	m.ExpiredSweeps = append(m.ExpiredSweeps, before)
	m.mu.Unlock()
	if m.DeleteExpiredFn != nil {
		return m.DeleteExpiredFn(ctx, before)
	}
	return m.DefaultDeleteExpired(before)
}

func (m *LockStore) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	m.Deletes = append(m.Deletes, id)
	m.mu.Unlock()
	if m.DeleteByIDFn != nil {
		return m.DeleteByIDFn(ctx, id)
	}
	return m.DefaultDeleteByID(id)
}

// DefaultInsertIfAbsent is the hook-free insert.
func (m *LockStore) DefaultInsertIfAbsent(lock *domain.OperationLock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[lock.ID]; ok {
		return domain.ErrLockExists
	}
	m.locks[lock.ID] = cloneLock(lock)
	return nil
}

// DefaultFindByID is the hook-free lookup.
func (m *LockStore) DefaultFindByID(id string) (*domain.OperationLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		return nil, domain.ErrLockNotFound
	}
	return cloneLock(lock), nil
}

// DefaultUpdateByID is the hook-free update.
func (m *LockStore) DefaultUpdateByID(id string, patch domain.LockPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		return domain.ErrLockNotFound
	}
	patch.Apply(lock)
	return nil
}

// DefaultDeleteExpired is the hook-free sweep.
func (m *LockStore) DefaultDeleteExpired(before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, lock := range m.locks {
		if lock.ExpiresAt.Before(before) {
			delete(m.locks, id)
			removed++
		}
	}
	return removed, nil
}

// DefaultDeleteByID is the hook-free delete.
func (m *LockStore) DefaultDeleteByID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[id]; !ok {
		return domain.ErrLockNotFound
	}
	delete(m.locks, id)
	return nil
}

// Put stores a row directly, bypassing insert semantics (test setup).
func (m *LockStore) Put(lock *domain.OperationLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[lock.ID] = cloneLock(lock)
}

// Len returns the number of stored rows.
func (m *LockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// UpdateCount returns the number of recorded UpdateByID calls.
func (m *LockStore) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Updates)
}

func cloneLock(l *domain.OperationLock) *domain.OperationLock {
	c := *l
	if l.CompletedAt != nil {
		at := *l.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
