// Package jobs defines the background tasks and the Asynq worker that runs
// them.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeQuoteExpirySweep marks open quotes past their expiration date
	// as expired.
	TaskTypeQuoteExpirySweep = "quotes:expiry_sweep"
	// TaskTypeIdempotencyCleanup prunes old idempotency keys.
	TaskTypeIdempotencyCleanup = "idempotency:cleanup"
)

// idempotencyRetention is how long processed keys stay queryable.
const idempotencyRetention = 7 * 24 * time.Hour

// QuoteExpirer sweeps overdue quotes.
type QuoteExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencyCleaner prunes old idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewQuoteExpirySweepTask constructs the sweep task. It carries no payload;
// the handler always sweeps up to the current time.
func NewQuoteExpirySweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeQuoteExpirySweep, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil)
}

// HandleQuoteExpirySweep returns the handler for TaskTypeQuoteExpirySweep.
func HandleQuoteExpirySweep(expirer QuoteExpirer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		swept, err := expirer.ExpireOverdue(ctx, time.Now())
		if err != nil {
			return err
		}
		logger.Info("quote expiry sweep finished", slog.Int64("swept", swept))
		return nil
	}
}

// HandleIdempotencyCleanup returns the handler for TaskTypeIdempotencyCleanup.
func HandleIdempotencyCleanup(cleaner IdempotencyCleaner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := cleaner.Cleanup(ctx, idempotencyRetention); err != nil {
			return err
		}
		logger.Info("idempotency key cleanup finished")
		return nil
	}
}
