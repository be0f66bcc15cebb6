package janitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cleaner removes expired operation locks. *usecase.Controller satisfies it.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Janitor periodically sweeps expired locks in the background.
type Janitor struct {
	cleaner  Cleaner
	interval time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// New creates a janitor that sweeps every interval.
func New(cleaner Cleaner, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger,
	}
}

// Start sweeps once immediately, then on every tick until ctx is cancelled.
// Call Stop to wait for the loop to exit.
func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("Starting lock janitor", zap.Duration("interval", j.interval))

	j.wg.Add(1)
	go j.run(ctx)
}

// Stop waits for the sweep loop to exit. Cancel the Start context first.
func (j *Janitor) Stop() {
	j.wg.Wait()
	j.logger.Info("Lock janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Debug("Lock janitor shutting down")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep runs one cleanup pass. A panic is logged and the loop carries on.
func (j *Janitor) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("Janitor panic recovered", zap.Any("panic", r))
		}
	}()

	removed, err := j.cleaner.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		j.logger.Error("Expired lock sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		j.logger.Debug("Expired lock sweep finished", zap.Int64("removed", removed))
	}
}
