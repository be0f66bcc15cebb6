package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestLockPatch_Apply(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	l := &OperationLock{ID: "x", Status: StatusFailed, ErrorMessage: "old"}
	CompletedPatch(json.RawMessage(`{"ok":1}`), at).Apply(l)
	if l.Status != StatusCompleted || string(l.Result) != `{"ok":1}` || l.ErrorMessage != "" {
		t.Errorf("unexpected completed lock: %+v", l)
	}
	if l.CompletedAt == nil || !l.CompletedAt.Equal(at) {
		t.Errorf("expected completed_at %s, got %v", at, l.CompletedAt)
	}

	FailedPatch("declined", at).Apply(l)
	if l.Status != StatusFailed || l.Result != nil || l.ErrorMessage != "declined" {
		t.Errorf("unexpected failed lock: %+v", l)
	}
}

func TestCompletedPatch_NilResult(t *testing.T) {
	p := CompletedPatch(nil, time.Now())
	if string(p.Result) != "null" {
		t.Errorf("expected null, got %q", p.Result)
	}
}

func TestLockStatus(t *testing.T) {
	tests := []struct {
		status   LockStatus
		terminal bool
		valid    bool
	}{
		{StatusProcessing, false, true},
		{StatusCompleted, true, true},
		{StatusFailed, true, true},
		{LockStatus("paused"), false, false},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if got := tt.status.IsValid(); got != tt.valid {
			t.Errorf("%s.IsValid() = %v, want %v", tt.status, got, tt.valid)
		}
	}
}

func TestOperationLock_IsExpired(t *testing.T) {
	now := time.Now()
	l := &OperationLock{ExpiresAt: now}
	if l.IsExpired(now) {
		t.Error("a lock expiring exactly now is not yet expired")
	}
	if !l.IsExpired(now.Add(time.Nanosecond)) {
		t.Error("expected lock to be expired")
	}
}

func TestPreviouslyFailedError(t *testing.T) {
	var err error = &PreviouslyFailedError{OperationID: "op-1", Message: "boom"}
	wrapped := fmt.Errorf("handler: %w", err)

	if !errors.Is(wrapped, ErrPreviouslyFailed) {
		t.Error("expected errors.Is to match ErrPreviouslyFailed")
	}
	if errors.Is(wrapped, ErrLockNotFound) {
		t.Error("unexpected match on ErrLockNotFound")
	}
	var pf *PreviouslyFailedError
	if !errors.As(wrapped, &pf) || pf.Message != "boom" {
		t.Errorf("expected to unwrap PreviouslyFailedError, got %+v", pf)
	}
	if err.Error() != "operation op-1 previously failed: boom" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
