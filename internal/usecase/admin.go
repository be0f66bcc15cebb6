package usecase

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/metrics"
)

// CleanupExpired removes every lock whose expires_at has passed, whatever its
// status. Removing an expired processing lock ends that id's guarantee: a
// later Execute with the same id runs the operation again.
func (c *Controller) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		c.logger.Error("Failed to clean up expired operation locks", zap.Error(err))
		return 0, err
	}

	metrics.CleanupRemoved.Add(float64(removed))
	c.logger.Info("Expired operation locks cleaned up", zap.Int64("removed", removed))
	if removed > 0 {
		c.publish(ctx, &domain.LockEvent{Type: domain.EventCleanedUp, Removed: removed})
	}
	return removed, nil
}

// GetStatus returns the current state of an operation without mutating it.
func (c *Controller) GetStatus(ctx context.Context, operationID string) (*domain.StatusView, error) {
	if operationID == "" {
		return nil, domain.ErrInvalidOperationID
	}
	lock, err := c.store.FindByID(ctx, operationID)
	if err != nil {
		return nil, err
	}
	return lock.View(), nil
}

// ForceComplete marks the operation completed with result, whatever its
// current status. It does not check for a live owner: if one is still running
// it will later overwrite this result with its own. Manual recovery only.
func (c *Controller) ForceComplete(ctx context.Context, operationID string, result json.RawMessage) error {
	if operationID == "" {
		return domain.ErrInvalidOperationID
	}
	if result != nil && !json.Valid(result) {
		return domain.ErrInvalidResult
	}
	if err := c.store.UpdateByID(ctx, operationID, domain.CompletedPatch(result, c.now())); err != nil {
		return err
	}

	metrics.AdminActions.WithLabelValues("force_complete").Inc()
	c.logger.Warn("Operation lock force-completed", zap.String("operation_id", operationID))
	c.publish(ctx, &domain.LockEvent{
		Type:        domain.EventForceCompleted,
		OperationID: operationID,
		Status:      domain.StatusCompleted,
	})
	return nil
}

// DeleteOperation removes the lock so the id can be executed again from scratch.
// Like ForceComplete it does not guard against an owner that is still running.
func (c *Controller) DeleteOperation(ctx context.Context, operationID string) error {
	if operationID == "" {
		return domain.ErrInvalidOperationID
	}
	if err := c.store.DeleteByID(ctx, operationID); err != nil {
		return err
	}

	metrics.AdminActions.WithLabelValues("delete").Inc()
	c.logger.Warn("Operation lock deleted", zap.String("operation_id", operationID))
	c.publish(ctx, &domain.LockEvent{Type: domain.EventDeleted, OperationID: operationID})
	return nil
}
