package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLockNotFound is returned when no lock row exists for an operation id.
	ErrLockNotFound = errors.New("operation lock not found")

	// ErrLockExists is returned by InsertIfAbsent when another caller created the row first.
	ErrLockExists = errors.New("operation lock already exists")

	// ErrWaitTimeout is returned when Execute waited longer than its budget for another owner.
	ErrWaitTimeout = errors.New("timed out waiting for operation owner")

	// ErrInvalidOperationID is returned when the operation id is empty.
	ErrInvalidOperationID = errors.New("operation id cannot be empty")

	// ErrInvalidResult is returned when a result to be stored is not valid JSON.
	ErrInvalidResult = errors.New("invalid JSON result")

	// ErrPreviouslyFailed matches any PreviouslyFailedError via errors.Is.
	ErrPreviouslyFailed = errors.New("operation previously failed")
)

// PreviouslyFailedError is returned when Execute is called again for an id
// whose recorded attempt failed. Message is the originally recorded error.
type PreviouslyFailedError struct {
	OperationID string
	Message     string
}

func (e *PreviouslyFailedError) Error() string {
	return fmt.Sprintf("operation %s previously failed: %s", e.OperationID, e.Message)
}

func (e *PreviouslyFailedError) Is(target error) bool {
	return target == ErrPreviouslyFailed
}
