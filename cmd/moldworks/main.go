package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/moldworks-erp/moldworks-erp/internal/app"
	"github.com/moldworks-erp/moldworks-erp/internal/integration"
	"github.com/moldworks-erp/moldworks-erp/internal/inventory"
	"github.com/moldworks-erp/moldworks-erp/internal/ledger"
	"github.com/moldworks-erp/moldworks-erp/internal/observability"
	"github.com/moldworks-erp/moldworks-erp/internal/platform/cache"
	"github.com/moldworks-erp/moldworks-erp/internal/platform/db"
	"github.com/moldworks-erp/moldworks-erp/internal/procurement"
	"github.com/moldworks-erp/moldworks-erp/internal/sales"
	"github.com/moldworks-erp/moldworks-erp/internal/shared"
	"github.com/moldworks-erp/moldworks-erp/internal/steel"
	"github.com/moldworks-erp/moldworks-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	ledgerRepo := ledger.NewRepository(dbpool)
	chartService := ledger.NewChartService(ledgerRepo, redisClient, cfg.ChartCacheTTL)
	poster := ledger.NewPoster(ledgerRepo, chartService, auditLogger)
	ledgerHandler := ledger.NewHandler(logger, chartService, ledgerRepo)

	hooks := integration.NewHooks(poster, logger)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore, hooks)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	steelRepo := steel.NewRepository(dbpool)
	steelService := steel.NewService(steelRepo, auditLogger)
	steelHandler := steel.NewHandler(logger, steelService)

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(procurementRepo, inventoryService, hooks, auditLogger, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, hooks, auditLogger, idempotencyStore, logger)
	salesHandler := sales.NewHandler(logger, salesService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      ledgerHandler,
		InventoryHandler:   inventoryHandler,
		SteelHandler:       steelHandler,
		ProcurementHandler: procurementHandler,
		SalesHandler:       salesHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
