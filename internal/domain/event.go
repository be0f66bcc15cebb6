package domain

import "time"

// EventType names a lock lifecycle transition.
type EventType string

const (
	EventAcquired       EventType = "lock.acquired"
	EventCompleted      EventType = "lock.completed"
	EventFailed         EventType = "lock.failed"
	EventForceCompleted EventType = "lock.force_completed"
	EventDeleted        EventType = "lock.deleted"
	EventCleanedUp      EventType = "lock.cleaned_up"
)

// LockEvent is published after every transition the controller makes.
type LockEvent struct {
	Type          EventType  `json:"type"`
	OperationID   string     `json:"operation_id,omitempty"`
	OperationType string     `json:"operation_type,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
	Status        LockStatus `json:"status,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Removed       int64      `json:"removed,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
