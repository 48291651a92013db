package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/app"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/disposal"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	jobmetrics "github.com/pharmaxis-erp/pharmaxis-erp/internal/jobs"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/platform/cache"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/platform/db"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
	"github.com/pharmaxis-erp/pharmaxis-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, snapshot caching disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	masterRepo := masterdata.NewRepository(pool)
	snapshotCache := inventory.NewSnapshotCache(redisClient, cfg.CacheTTL)
	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, masterRepo, snapshotCache, nil)

	disposalRepo := disposal.NewRepository(pool)
	sweeper := disposal.NewSweeper(logger, inventoryService, disposalRepo)

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	sweepJob := jobs.NewExpirySweepJob(sweeper, logger, metrics)
	reconcileJob := jobs.NewReconcileJob(inventoryService, logger, metrics)
	lowStockJob := jobs.NewLowStockScanJob(inventoryService, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, metrics)

	sweepTask, err := jobs.NewExpirySweepTask(jobs.ExpirySweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExpirySweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpirySweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ReconcileCron, Task: jobs.NewReconcileTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LowStockScanCron, Task: jobs.NewLowStockScanTask()},
			{Spec: cfg.IdemCleanupCron, Task: jobs.NewIdempotencyCleanupTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
