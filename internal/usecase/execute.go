package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/metrics"
)

// OperationFunc is the caller's operation. It is invoked at most once per
// operation id. A result that is not valid JSON is recorded as a failure.
type OperationFunc func(ctx context.Context) (json.RawMessage, error)

const (
	waitProcessing = "processing"
	waitRace       = "race"
)

// Execute runs fn at most once for req.OperationID.
//
// A completed id replays its stored result without calling fn. A failed id
// returns a *domain.PreviouslyFailedError without calling fn. An id owned by
// another caller is polled until it turns terminal or MaxWait elapses, in which
// case the error wraps domain.ErrWaitTimeout. A fresh id is claimed and fn runs;
// its result (or error) is recorded before Execute returns.
//
// On a fresh failure the Outcome is non-nil and the error is fn's error,
// unchanged, or one wrapping domain.ErrInvalidResult if fn returned bytes that
// are not JSON. Store errors are returned unmodified with a nil Outcome.
func (c *Controller) Execute(ctx context.Context, req domain.ExecuteRequest, fn OperationFunc) (*domain.Outcome, error) {
	if req.OperationID == "" {
		return nil, domain.ErrInvalidOperationID
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	// Wait budget runs on the wall clock, independent of the row timestamp clock.
	deadline := time.Now().Add(c.opts.MaxWait)

	for {
		existing, err := c.store.FindByID(ctx, req.OperationID)
		switch {
		case err == nil:
			switch existing.Status {
			case domain.StatusCompleted:
				metrics.ExecutionsTotal.WithLabelValues(metrics.OperationType(req.OperationType), metrics.OutcomeReplayedCompleted).Inc()
				c.logger.Debug("Replaying completed operation", zap.String("operation_id", req.OperationID))
				return &domain.Outcome{
					OperationID: req.OperationID,
					Status:      domain.StatusCompleted,
					Result:      existing.Result,
					Replayed:    true,
				}, nil

			case domain.StatusFailed:
				metrics.ExecutionsTotal.WithLabelValues(metrics.OperationType(req.OperationType), metrics.OutcomeReplayedFailed).Inc()
				c.logger.Debug("Operation previously failed", zap.String("operation_id", req.OperationID))
				return &domain.Outcome{
						OperationID:  req.OperationID,
						Status:       domain.StatusFailed,
						ErrorMessage: existing.ErrorMessage,
						Replayed:     true,
					}, &domain.PreviouslyFailedError{
						OperationID: req.OperationID,
						Message:     existing.ErrorMessage,
					}

			case domain.StatusProcessing:
				if err := c.wait(ctx, req, deadline, c.opts.PollInterval, waitProcessing); err != nil {
					return nil, err
				}
				continue

			default:
				metrics.ExecutionsTotal.WithLabelValues(metrics.OperationType(req.OperationType), metrics.OutcomeError).Inc()
				return nil, fmt.Errorf("operation %s has unknown lock status %q", req.OperationID, existing.Status)
			}

		case errors.Is(err, domain.ErrLockNotFound):
			lock := c.newLock(req, ttl)
			err := c.store.InsertIfAbsent(ctx, lock)
			if errors.Is(err, domain.ErrLockExists) {
				if err := c.wait(ctx, req, deadline, c.opts.RaceBackoff, waitRace); err != nil {
					return nil, err
				}
				continue
			}
			if err != nil {
				metrics.ExecutionsTotal.WithLabelValues(metrics.OperationType(req.OperationType), metrics.OutcomeError).Inc()
				c.logger.Error("Failed to create operation lock", zap.Error(err), zap.String("operation_id", req.OperationID))
				return nil, err
			}
			return c.run(ctx, lock, fn)

		default:
			metrics.ExecutionsTotal.WithLabelValues(metrics.OperationType(req.OperationType), metrics.OutcomeError).Inc()
			c.logger.Error("Failed to look up operation lock", zap.Error(err), zap.String("operation_id", req.OperationID))
			return nil, err
		}
	}
}

func (c *Controller) newLock(req domain.ExecuteRequest, ttl time.Duration) *domain.OperationLock {
	now := c.now()
	return &domain.OperationLock{
		ID:            req.OperationID,
		OperationType: req.OperationType,
		Status:        domain.StatusProcessing,
		RequestParams: req.Params,
		UserID:        req.UserID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
}

// wait sleeps for interval unless that would pass the deadline or ctx ends first.
func (c *Controller) wait(ctx context.Context, req domain.ExecuteRequest, deadline time.Time, interval time.Duration, reason string) error {
	if time.Now().Add(interval).After(deadline) {
		metrics.ExecutionsTotal.WithLabelValues(metrics.OperationType(req.OperationType), metrics.OutcomeTimeout).Inc()
		c.logger.Warn("Gave up waiting for operation owner",
			zap.String("operation_id", req.OperationID),
			zap.Duration("max_wait", c.opts.MaxWait),
		)
		return fmt.Errorf("%w: operation %s still %s after %s", domain.ErrWaitTimeout, req.OperationID, domain.StatusProcessing, c.opts.MaxWait)
	}

	metrics.WaitPolls.WithLabelValues(reason).Inc()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// run invokes fn as the lock owner and records the terminal state.
func (c *Controller) run(ctx context.Context, lock *domain.OperationLock, fn OperationFunc) (*domain.Outcome, error) {
	c.logger.Debug("Acquired operation lock",
		zap.String("operation_id", lock.ID),
		zap.String("operation_type", lock.OperationType),
	)
	c.publish(ctx, &domain.LockEvent{
		Type:          domain.EventAcquired,
		OperationID:   lock.ID,
		OperationType: lock.OperationType,
		UserID:        lock.UserID,
		Status:        domain.StatusProcessing,
	})

	start := time.Now()
	result, fnErr := invoke(ctx, fn)
	if fnErr == nil && result != nil && !json.Valid(result) {
		result = nil
		fnErr = fmt.Errorf("operation returned %w", domain.ErrInvalidResult)
	}
	metrics.ExecutionDuration.WithLabelValues(metrics.OperationType(lock.OperationType)).Observe(time.Since(start).Seconds())

	// The terminal write must land even if the caller gave up meanwhile.
	writeCtx := context.WithoutCancel(ctx)

	if fnErr != nil {
		msg := fnErr.Error()
		if err := c.store.UpdateByID(writeCtx, lock.ID, domain.FailedPatch(msg, c.now())); err != nil {
			metrics.StatusWriteFailures.WithLabelValues(string(domain.StatusFailed)).Inc()
			c.logger.Error("Failed to record operation failure",
				zap.String("operation_id", lock.ID),
				zap.NamedError("operation_error", fnErr),
				zap.Error(err),
			)
		}
		metrics.ExecutionsTotal.WithLabelValues(metrics.OperationType(lock.OperationType), metrics.OutcomeFailed).Inc()
		c.logger.Info("Operation failed",
			zap.String("operation_id", lock.ID),
			zap.String("operation_type", lock.OperationType),
			zap.String("error", msg),
		)
		c.publish(writeCtx, &domain.LockEvent{
			Type:          domain.EventFailed,
			OperationID:   lock.ID,
			OperationType: lock.OperationType,
			UserID:        lock.UserID,
			Status:        domain.StatusFailed,
			ErrorMessage:  msg,
		})
		return &domain.Outcome{
			OperationID:  lock.ID,
			Status:       domain.StatusFailed,
			ErrorMessage: msg,
		}, fnErr
	}

	patch := domain.CompletedPatch(result, c.now())
	if err := c.store.UpdateByID(writeCtx, lock.ID, patch); err != nil {
		// The caller still gets the true result; future replays will see the
		// row stuck in processing until it expires.
		metrics.StatusWriteFailures.WithLabelValues(string(domain.StatusCompleted)).Inc()
		c.logger.Error("Failed to record operation result",
			zap.String("operation_id", lock.ID),
			zap.Error(err),
		)
	}
	metrics.ExecutionsTotal.WithLabelValues(metrics.OperationType(lock.OperationType), metrics.OutcomeCompleted).Inc()
	c.logger.Info("Operation completed",
		zap.String("operation_id", lock.ID),
		zap.String("operation_type", lock.OperationType),
		zap.Duration("elapsed", time.Since(start)),
	)
	c.publish(writeCtx, &domain.LockEvent{
		Type:          domain.EventCompleted,
		OperationID:   lock.ID,
		OperationType: lock.OperationType,
		UserID:        lock.UserID,
		Status:        domain.StatusCompleted,
	})

	return &domain.Outcome{
		OperationID: lock.ID,
		Status:      domain.StatusCompleted,
		Result:      patch.Result,
	}, nil
}

// invoke calls fn, turning a panic into an error so the lock still reaches a terminal state.
func invoke(ctx context.Context, fn OperationFunc) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return fn(ctx)
}
