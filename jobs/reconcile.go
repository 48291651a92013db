package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	jobmetrics "github.com/pharmaxis-erp/pharmaxis-erp/internal/jobs"
)

// ReconcileJob periodically rebuilds every inventory line aggregate so
// drift between lines and their batches cannot survive past one cycle.
type ReconcileJob struct {
	Inventory *inventory.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(svc *inventory.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Inventory: svc, Logger: logger, Metrics: metrics}
}

// Handle executes one reconciliation run.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("reconcile: handler not configured")
	}
	tracker := j.Metrics.Track(TaskReconcile)
	count, err := j.Inventory.Reconcile(ctx)
	if err != nil {
		return tracker.End(err)
	}
	j.Logger.Info("inventory reconciled", slog.Int("lines", count))
	return tracker.End(nil)
}
