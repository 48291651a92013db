package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pharmaxis-erp/pharmaxis-erp/internal/jobs"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
)

const idempotencyRetention = 7 * 24 * time.Hour

// IdempotencyCleanupJob prunes idempotency keys past retention.
type IdempotencyCleanupJob struct {
	Store   *shared.IdempotencyStore
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Metrics: metrics}
}

// Handle executes one cleanup pass.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	return tracker.End(j.Store.Cleanup(ctx, idempotencyRetention))
}
