package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	jobmetrics "github.com/pharmaxis-erp/pharmaxis-erp/internal/jobs"
)

// LowStockScanJob reports lines sitting at or under their product
// minimum. The report goes to the log; purchasing watches it there.
type LowStockScanJob struct {
	Inventory *inventory.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(svc *inventory.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Inventory: svc, Logger: logger, Metrics: metrics}
}

// Handle executes one scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("lowstock scan: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	entries, err := j.Inventory.LowStock(ctx)
	if err != nil {
		return tracker.End(err)
	}
	for _, entry := range entries {
		j.Logger.Warn("low stock",
			slog.Int64("branch_id", entry.BranchID),
			slog.Int64("product_id", entry.ProductID),
			slog.String("product", entry.ProductName),
			slog.Int64("quantity", entry.Quantity),
			slog.Int64("min_stock", entry.MinStock))
	}
	j.Metrics.SetLowStock(len(entries))
	j.Logger.Info("low stock scan finished", slog.Int("entries", len(entries)))
	return tracker.End(nil)
}
