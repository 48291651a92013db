package disposal

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
)

func newTestSweeper() (*Sweeper, *fakeStock, *memoryRepo) {
	repo := newMemoryRepo()
	stock := newFakeStock()
	return NewSweeper(slog.Default(), stock, repo), stock, repo
}

func TestSweepMarksAndRaisesRequests(t *testing.T) {
	sweeper, stock, repo := newTestSweeper()
	now := expiry(0)

	stock.addBatch(1, 1, 10, "OLD-A", expiry(-10), 12)
	stock.addBatch(2, 1, 20, "OLD-B", expiry(-3), 4)
	stock.addBatch(3, 2, 10, "OLD-C", expiry(-1), 9)
	stock.addBatch(4, 1, 10, "FRESH", expiry(30), 50)

	report, err := sweeper.Run(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 3, report.Scanned)
	require.Equal(t, 3, report.Marked)
	require.Equal(t, 2, report.RequestsCreated)

	require.Equal(t, inventory.BatchExpired, stock.batches[1].Status)
	require.Equal(t, inventory.BatchExpired, stock.batches[2].Status)
	require.Equal(t, inventory.BatchExpired, stock.batches[3].Status)
	require.Equal(t, inventory.BatchActive, stock.batches[4].Status)

	// One pending request per branch, carrying the sweep reason.
	pending, err := repo.List(context.Background(), Filter{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, d := range pending {
		require.Equal(t, SweepReason, d.Reason)
	}
}

func TestSweepIsRerunnable(t *testing.T) {
	sweeper, stock, repo := newTestSweeper()
	now := expiry(0)

	stock.addBatch(1, 1, 10, "OLD-A", expiry(-10), 12)

	report, err := sweeper.Run(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, report.RequestsCreated)

	// Nothing is ACTIVE and expired anymore, so the next run is empty.
	report, err = sweeper.Run(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 0, report.Scanned)
	require.Equal(t, 0, report.RequestsCreated)

	pending, err := repo.List(context.Background(), Filter{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestSweepAfterPartialFailureDoesNotDuplicateRequests(t *testing.T) {
	sweeper, stock, repo := newTestSweeper()
	now := expiry(0)

	stock.addBatch(1, 1, 10, "OLD-A", expiry(-10), 12)

	// First run created the request but marking is simulated as lost:
	// flip the batch back to ACTIVE as if the mark never committed.
	_, err := sweeper.Run(context.Background(), now)
	require.NoError(t, err)
	stock.batches[1].Status = inventory.BatchActive

	report, err := sweeper.Run(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Equal(t, 1, report.Marked)
	require.Equal(t, 0, report.RequestsCreated)

	pending, err := repo.List(context.Background(), Filter{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Len(t, pending[0].Items, 1)
}

func TestSweepLeavesBatchExpiringTodayUntouched(t *testing.T) {
	sweeper, stock, repo := newTestSweeper()

	stock.addBatch(1, 1, 10, "TODAY", expiry(0), 12)
	stock.addBatch(2, 1, 20, "YESTERDAY", expiry(-1), 6)

	// Mid-morning run on the expiry day itself: only the batch from
	// the previous day is overdue.
	report, err := sweeper.Run(context.Background(), expiry(0).Add(10*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Equal(t, 1, report.Marked)
	require.Equal(t, inventory.BatchActive, stock.batches[1].Status)
	require.Equal(t, inventory.BatchExpired, stock.batches[2].Status)

	pending, err := repo.List(context.Background(), Filter{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Len(t, pending[0].Items, 1)
	require.Equal(t, "YESTERDAY", pending[0].Items[0].BatchNumber)
}

func TestSweepSkipsEmptyBatchesForRequests(t *testing.T) {
	sweeper, stock, repo := newTestSweeper()
	now := expiry(0)

	// Drained but still ACTIVE batch: must be marked EXPIRED, but there
	// is nothing to dispose.
	stock.addBatch(1, 1, 10, "DRAINED", expiry(-10), 0)

	report, err := sweeper.Run(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Equal(t, 1, report.Marked)
	require.Equal(t, 0, report.RequestsCreated)
	require.Equal(t, inventory.BatchExpired, stock.batches[1].Status)

	pending, err := repo.List(context.Background(), Filter{Status: StatusPending})
	require.NoError(t, err)
	require.Empty(t, pending)
}
