package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskExpirySweep flags expired batches and raises disposal requests.
	TaskExpirySweep = "inventory:expiry_sweep"
	// TaskReconcile recomputes every inventory line from its batches.
	TaskReconcile = "inventory:reconcile"
	// TaskLowStockScan reports lines under their product minimum.
	TaskLowStockScan = "inventory:lowstock_scan"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// ExpirySweepPayload parameterises one sweep run. A zero AsOf means the
// handler picks the current time.
type ExpirySweepPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// NewExpirySweepTask constructs the sweep task.
func NewExpirySweepTask(payload ExpirySweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpirySweep, data), nil
}

// NewReconcileTask constructs the reconciliation task.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskReconcile, nil)
}

// NewLowStockScanTask constructs the low stock scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
