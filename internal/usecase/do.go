package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Harsh-BH/oplock/internal/domain"
)

// Do is a typed wrapper around Execute: fn's value is stored as JSON and
// decoded back into T on replay.
func Do[T any](ctx context.Context, c *Controller, req domain.ExecuteRequest, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	outcome, err := c.Execute(ctx, req, func(ctx context.Context) (json.RawMessage, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		return raw, nil
	})
	if err != nil {
		return zero, err
	}

	var v T
	if err := json.Unmarshal(outcome.Result, &v); err != nil {
		return zero, fmt.Errorf("decode result of operation %s: %w", req.OperationID, err)
	}
	return v, nil
}
