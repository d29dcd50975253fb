package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-doclife/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-doclife/internal/app"
	"github.com/odyssey-erp/odyssey-doclife/internal/cashsession"
	"github.com/odyssey-erp/odyssey-doclife/internal/catalog"
	"github.com/odyssey-erp/odyssey-doclife/internal/documents"
	"github.com/odyssey-erp/odyssey-doclife/internal/drafts"
	"github.com/odyssey-erp/odyssey-doclife/internal/finance"
	"github.com/odyssey-erp/odyssey-doclife/internal/ledger"
	"github.com/odyssey-erp/odyssey-doclife/internal/lifecycle"
	"github.com/odyssey-erp/odyssey-doclife/internal/observability"
	"github.com/odyssey-erp/odyssey-doclife/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-doclife/internal/platform/db"
	"github.com/odyssey-erp/odyssey-doclife/internal/shared"
	"github.com/odyssey-erp/odyssey-doclife/jobs"
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr, cfg.StaleAttemptAfter, cfg.IdempotencyRetention)
		if err != nil {
			logger.Error("init jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		defer jobsCLI.Close()
		if err := jobsCLI.Run(ctx, os.Args[2:], os.Stdout); err != nil {
			logger.Error("jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	locker := shared.NewRedisLocker(redisClient, cfg.LockTTL, cfg.LockWait, logger)

	ledgerService := ledger.NewService(ledger.NewRepository(dbpool), logger)
	financeService := finance.NewService(finance.NewRepository(dbpool), idempotencyStore, logger, finance.ServiceConfig{Locale: cfg.FinanceLocale})

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
		logger.Info("financial entries served remotely", slog.String("base_url", cfg.FinanceBaseURL))
	}

	documentService := documents.NewService(documents.NewRepository(dbpool), auditLogger, logger)

	catalogService := catalog.NewService(catalog.NewRepository(dbpool), catalog.NewCache(redisClient, cfg.CatalogCacheTTL), logger)
	draftService := drafts.NewService(documentService, catalogService, logger)

	lifecycleService := lifecycle.NewService(
		lifecycle.NewRepository(dbpool),
		lifecycle.NewAttemptRepository(dbpool),
		financePort,
		locker,
		auditLogger,
		logger,
		lifecycle.ServiceConfig{
			DBTimeout:           cfg.DBTimeout,
			FinanceTimeout:      cfg.FinanceTimeout,
			CompensationTimeout: cfg.CompensationTimeout,
		},
	)
	lifecycleService.WithMetrics(lifecycle.NewMetrics(metrics.Registerer()))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	cashService := cashsession.NewService(cashsession.NewRepository(dbpool), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		DocumentsHandler:   documents.NewHandler(logger, documentService),
		DraftsHandler:      drafts.NewHandler(logger, draftService),
		LifecycleHandler:   lifecycle.NewHandler(logger, lifecycleService, jobClient),
		LedgerHandler:      ledger.NewHandler(logger, ledgerService),
		FinanceHandler:     finance.NewHandler(logger, financeService),
		CatalogHandler:     catalog.NewHandler(logger, catalogService),
		CashSessionHandler: cashsession.NewHandler(logger, cashService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		Checks: map[string]app.Pinger{
			"postgres": dbpool,
			"redis":    redisPinger(redisClient),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func redisPinger(client *redis.Client) app.PingFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
