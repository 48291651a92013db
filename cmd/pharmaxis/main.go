package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/app"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/disposal"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/observability"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/platform/cache"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/platform/db"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/pos"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/shared"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/transfer"
	"github.com/pharmaxis-erp/pharmaxis-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	validate := validator.New()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	masterRepo := masterdata.NewRepository(pool)
	masterHandler := masterdata.NewHandler(logger, masterRepo)

	metrics := observability.NewMetrics()

	snapshotCache := inventory.NewSnapshotCache(redisClient, cfg.CacheTTL)
	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, masterRepo, snapshotCache, metrics)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, validate)

	posRepo := pos.NewRepository(pool)
	posService := pos.NewService(inventoryService, masterRepo, posRepo)
	posHandler := pos.NewHandler(logger, posService, validate)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(logger, transferRepo, inventoryService, masterRepo, approvalRecorder, idempotencyStore)
	transferHandler := transfer.NewHandler(logger, transferService, validate)

	disposalRepo := disposal.NewRepository(pool)
	disposalService := disposal.NewService(logger, disposalRepo, inventoryService, masterRepo, approvalRecorder)
	sweeper := disposal.NewSweeper(logger, inventoryService, disposalRepo)
	disposalHandler := disposal.NewHandler(logger, disposalService, sweeper, validate)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		InventoryHandler:  inventoryHandler,
		POSHandler:        posHandler,
		TransferHandler:   transferHandler,
		DisposalHandler:   disposalHandler,
		MasterDataHandler: masterHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
		Pool:              pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
