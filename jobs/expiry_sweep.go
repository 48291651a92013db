package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/disposal"
	jobmetrics "github.com/pharmaxis-erp/pharmaxis-erp/internal/jobs"
)

// ExpirySweepJob runs the expiry sweep on schedule.
type ExpirySweepJob struct {
	Sweeper *disposal.Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewExpirySweepJob initialises the sweep handler.
func NewExpirySweepJob(sweeper *disposal.Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpirySweepJob {
	return &ExpirySweepJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes one sweep run.
func (j *ExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("expiry sweep: handler not configured")
	}
	var payload ExpirySweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.clock()
	}

	tracker := j.Metrics.Track(TaskExpirySweep)
	report, err := j.Sweeper.Run(ctx, asOf)
	if err != nil {
		return tracker.End(err)
	}
	j.Metrics.AddSwept(report.Marked)
	if report.MarkFailures > 0 {
		j.Logger.Warn("expiry sweep left batches unmarked",
			slog.Int("failures", report.MarkFailures))
	}
	return tracker.End(nil)
}
