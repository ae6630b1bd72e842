package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/moldworks-erp/moldworks-erp/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// UnbalancedLister reports journal entries whose debits and credits differ.
type UnbalancedLister interface {
	ListUnbalancedJournals(ctx context.Context) ([]int64, error)
}

// NewLedgerIntegrityHandler scans journal lines and reports any entry where
// the debit and credit sums diverge. A healthy ledger logs a zero count.
func NewLedgerIntegrityHandler(repo UnbalancedLister, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskLedgerIntegrity)
		ids, err := repo.ListUnbalancedJournals(ctx)
		if err != nil {
			return tracker.End(err)
		}
		if len(ids) > 0 {
			metrics.AddUnbalanced(len(ids))
			logger.Error("unbalanced journal entries detected",
				slog.Int("count", len(ids)),
				slog.Any("journal_ids", ids),
			)
			return tracker.End(nil)
		}
		logger.Info("ledger integrity check passed", slog.String("job", TaskLedgerIntegrity))
		return tracker.End(nil)
	}
}
