package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/moldworks-erp/moldworks-erp/internal/jobs"
)

// KeyCleaner prunes idempotency keys past retention.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupHandler deletes idempotency keys older than retention.
func NewIdempotencyCleanupHandler(store KeyCleaner, retention time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskIdempotencyCleanup)
		if err := store.Cleanup(ctx, retention); err != nil {
			return tracker.End(err)
		}
		logger.Info("idempotency keys pruned",
			slog.String("job", TaskIdempotencyCleanup),
			slog.Duration("retention", retention),
		)
		return tracker.End(nil)
	}
}
