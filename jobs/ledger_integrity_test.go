package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/moldworks-erp/moldworks-erp/internal/jobs"
)

type fakeLister struct {
	ids []int64
	err error
}

func (f *fakeLister) ListUnbalancedJournals(ctx context.Context) ([]int64, error) {
	return f.ids, f.err
}

type fakeCleaner struct {
	olderThan time.Duration
	err       error
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	f.olderThan = olderThan
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestLedgerIntegrityPassesOnBalancedBooks(t *testing.T) {
	handler := NewLedgerIntegrityHandler(&fakeLister{}, testMetrics(), testLogger())
	err := handler(context.Background(), asynq.NewTask(TaskLedgerIntegrity, nil))
	require.NoError(t, err)
}

func TestLedgerIntegrityReportsUnbalancedWithoutFailing(t *testing.T) {
	lister := &fakeLister{ids: []int64{7, 12}}
	handler := NewLedgerIntegrityHandler(lister, testMetrics(), testLogger())

	// Unbalanced entries are an operator alarm, not a retryable failure.
	err := handler(context.Background(), asynq.NewTask(TaskLedgerIntegrity, nil))
	require.NoError(t, err)
}

func TestLedgerIntegrityPropagatesRepoError(t *testing.T) {
	boom := errors.New("query failed")
	handler := NewLedgerIntegrityHandler(&fakeLister{err: boom}, testMetrics(), testLogger())
	err := handler(context.Background(), asynq.NewTask(TaskLedgerIntegrity, nil))
	require.ErrorIs(t, err, boom)
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	handler := NewIdempotencyCleanupHandler(cleaner, 168*time.Hour, testMetrics(), testLogger())

	err := handler(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil))
	require.NoError(t, err)
	require.Equal(t, 168*time.Hour, cleaner.olderThan)
}

func TestIdempotencyCleanupPropagatesError(t *testing.T) {
	boom := errors.New("delete failed")
	handler := NewIdempotencyCleanupHandler(&fakeCleaner{err: boom}, 24*time.Hour, testMetrics(), testLogger())
	err := handler(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil))
	require.ErrorIs(t, err, boom)
}
