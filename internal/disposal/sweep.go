package disposal

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Sweeper is the expiry sweep. It flags every ACTIVE batch whose expiry
// date has passed and raises one pending disposal request per branch for
// the flagged stock that still has quantity. Both steps are idempotent:
// marking an expired batch again changes nothing, and the batch claim on
// disposal items swallows repeated requests while one is open, so a sweep
// that crashed halfway can simply run again.
type Sweeper struct {
	logger *slog.Logger
	stock  StockPort
	repo   RepositoryPort
}

// NewSweeper builds Sweeper.
func NewSweeper(logger *slog.Logger, stock StockPort, repo RepositoryPort) *Sweeper {
	return &Sweeper{logger: logger, stock: stock, repo: repo}
}

// SweepReport summarises one sweep run.
type SweepReport struct {
	Scanned         int `json:"scanned"`
	Marked          int `json:"marked"`
	MarkFailures    int `json:"mark_failures"`
	RequestsCreated int `json:"requests_created"`
}

// Run executes one sweep as of the given instant. Only batches expiring
// strictly before that day are flagged; a batch whose expiry date is the
// sweep day itself stays sellable until midnight.
func (s *Sweeper) Run(ctx context.Context, asOf time.Time) (SweepReport, error) {
	report := SweepReport{}
	asOf = asOf.UTC().Truncate(24 * time.Hour)
	batches, err := s.stock.ExpiredActiveBatches(ctx, asOf)
	if err != nil {
		return report, err
	}
	report.Scanned = len(batches)
	if len(batches) == 0 {
		return report, nil
	}

	// Raise the disposal requests first: if marking crashes midway the
	// next run still sees the batches as ACTIVE and retries, while the
	// batch constraint keeps the requests from doubling.
	byBranch := make(map[int64][]DisposalItem)
	for _, batch := range batches {
		if batch.Quantity == 0 {
			continue
		}
		byBranch[batch.BranchID] = append(byBranch[batch.BranchID], DisposalItem{
			BatchID:     batch.ID,
			ProductID:   batch.ProductID,
			BatchNumber: batch.BatchNumber,
			Qty:         batch.Quantity,
		})
	}
	branchIDs := make([]int64, 0, len(byBranch))
	for branchID := range byBranch {
		branchIDs = append(branchIDs, branchID)
	}
	sort.Slice(branchIDs, func(i, j int) bool { return branchIDs[i] < branchIDs[j] })

	for _, branchID := range branchIDs {
		inserted, err := s.repo.Insert(ctx, Disposal{
			ID:       uuid.New(),
			BranchID: branchID,
			Reason:   SweepReason,
			Status:   StatusPending,
			Items:    byBranch[branchID],
		})
		if err != nil {
			return report, err
		}
		if inserted > 0 {
			report.RequestsCreated++
		}
	}

	for _, batch := range batches {
		if err := s.stock.MarkBatchExpired(ctx, batch.BranchID, batch.ProductID, batch.ID); err != nil {
			report.MarkFailures++
			s.logger.Error("mark batch expired",
				slog.Int64("batch_id", batch.ID),
				slog.Int64("branch_id", batch.BranchID),
				slog.Any("error", err))
			continue
		}
		report.Marked++
	}

	s.logger.Info("expiry sweep finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("marked", report.Marked),
		slog.Int("requests", report.RequestsCreated))
	return report, nil
}
