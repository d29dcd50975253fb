package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-doclife/internal/app"
	"github.com/odyssey-erp/odyssey-doclife/internal/finance"
	jobmetrics "github.com/odyssey-erp/odyssey-doclife/internal/jobs"
	"github.com/odyssey-erp/odyssey-doclife/internal/lifecycle"
	"github.com/odyssey-erp/odyssey-doclife/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-doclife/internal/platform/db"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
	"github.com/odyssey-erp/odyssey-doclife/jobs"
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

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	financeService := finance.NewService(finance.NewRepository(pool), idempotencyStore, logger, finance.ServiceConfig{Locale: cfg.FinanceLocale})
	var financePort lifecycle.FinancePort = finance.NewLocalClient(financeService)
	if cfg.RemoteFinance() {
		financePort = finance.NewClient(finance.ClientConfig{
			BaseURL:          cfg.FinanceBaseURL,
			Timeout:          cfg.FinanceTimeout,
			Retries:          cfg.FinanceRetries,
			BreakerThreshold: cfg.FinanceBreakerThreshold,
			BreakerCooldown:  cfg.FinanceBreakerCooldown,
			Logger:           logger,
		})
	}
	lifecycleService := lifecycle.NewService(
		lifecycle.NewRepository(pool),
		lifecycle.NewAttemptRepository(pool),
		financePort,
		shared.NewRedisLocker(redisClient, cfg.LockTTL, cfg.LockWait, logger),
		shared.NewAuditLogger(pool),
		logger,
		lifecycle.ServiceConfig{
			DBTimeout:           cfg.DBTimeout,
			FinanceTimeout:      cfg.FinanceTimeout,
			CompensationTimeout: cfg.CompensationTimeout,
		},
	)

	scanJob := jobs.NewCompensationScanJob(lifecycleService, cfg.StaleAttemptAfter, logger, metrics)
	reconcileJob := jobs.NewReconcileJob(lifecycleService, logger, metrics)
	purgeJob := jobs.NewIdempotencyPurgeJob(idempotencyStore, cfg.IdempotencyRetention, logger, metrics)

	scanTask, err := jobs.NewCompensationScanTask(cfg.StaleAttemptAfter)
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}
	purgeTask, err := jobs.NewIdempotencyPurgeTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCompensationScan, Handler: scanJob.Handle},
			{Type: jobs.TaskReconcileAttempt, Handler: reconcileJob.Handle},
			{Type: jobs.TaskIdempotencyPurge, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CompensationScanCron, Task: scanTask},
			{Spec: cfg.IdempotencyPurgeCron, Task: purgeTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadTimeout: cfg.AppReadTimeout}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer metricsServer.Close()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
