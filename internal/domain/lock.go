package domain

import (
	"encoding/json"
	"time"
)

// LockStatus represents the lifecycle state of an operation lock.
type LockStatus string

const (
	StatusProcessing LockStatus = "processing"
	StatusCompleted  LockStatus = "completed"
	StatusFailed     LockStatus = "failed"
)

// IsTerminal returns true if the status represents a final state.
func (s LockStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid checks if the status is one the controller knows about.
func (s LockStatus) IsValid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// DefaultTTL bounds how long a lock row, and its idempotency guarantee, lives.
const DefaultTTL = 24 * time.Hour

// OperationLock is the persisted record guarding one caller-identified operation.
type OperationLock struct {
	ID            string          `json:"id"`
	OperationType string          `json:"operation_type"`
	Status        LockStatus      `json:"status"`
	RequestParams json.RawMessage `json:"request_params,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// IsExpired reports whether the lock's reclamation boundary lies before now.
func (l *OperationLock) IsExpired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}

// View projects the lock into the read-only shape returned by GetStatus.
func (l *OperationLock) View() *StatusView {
	return &StatusView{
		ID:            l.ID,
		OperationType: l.OperationType,
		Status:        l.Status,
		Result:        l.Result,
		ErrorMessage:  l.ErrorMessage,
		CreatedAt:     l.CreatedAt,
		CompletedAt:   l.CompletedAt,
		ExpiresAt:     l.ExpiresAt,
	}
}

// LockPatch is a terminal transition applied to a single lock row.
// Result and ErrorMessage are written together so a transition always clears the other.
type LockPatch struct {
	Status       LockStatus
	Result       json.RawMessage
	ErrorMessage string
	CompletedAt  time.Time
}

// CompletedPatch builds the transition to completed.
func CompletedPatch(result json.RawMessage, at time.Time) LockPatch {
	if result == nil {
		result = json.RawMessage("null")
	}
	return LockPatch{Status: StatusCompleted, Result: result, CompletedAt: at}
}

// FailedPatch builds the transition to failed.
func FailedPatch(message string, at time.Time) LockPatch {
	return LockPatch{Status: StatusFailed, ErrorMessage: message, CompletedAt: at}
}

// Apply writes the patch onto an in-memory copy of a lock.
func (p LockPatch) Apply(l *OperationLock) {
	at := p.CompletedAt
	l.Status = p.Status
	l.CompletedAt = &at
	switch p.Status {
	case StatusCompleted:
		l.Result = p.Result
		l.ErrorMessage = ""
	case StatusFailed:
		l.Result = nil
		l.ErrorMessage = p.ErrorMessage
	}
}

// StatusView is the polling projection of a lock.
type StatusView struct {
	ID            string          `json:"id"`
	OperationType string          `json:"operation_type"`
	Status        LockStatus      `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// ExecuteRequest identifies one logical attempt at an operation.
type ExecuteRequest struct {
	OperationID   string
	OperationType string
	UserID        string
	Params        json.RawMessage
	TTL           time.Duration // zero means the controller default
}

// Outcome is the tagged result of Execute. Status is completed or failed;
// store-level failures are reported through the error return only.
type Outcome struct {
	OperationID  string          `json:"operation_id"`
	Status       LockStatus      `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Replayed     bool            `json:"replayed"`
}

// Succeeded reports whether the outcome carries a result.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Status == StatusCompleted
}
