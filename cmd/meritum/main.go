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
	"github.com/redis/go-redis/v9"

	"github.com/meritum-hr/meritum/internal/app"
	"github.com/meritum-hr/meritum/internal/ledger"
	ledgerhttp "github.com/meritum-hr/meritum/internal/ledger/http"
	"github.com/meritum-hr/meritum/internal/observability"
	"github.com/meritum-hr/meritum/internal/platform/db"
	"github.com/meritum-hr/meritum/internal/rollover"
	rolloverhttp "github.com/meritum-hr/meritum/internal/rollover/http"
	"github.com/meritum-hr/meritum/internal/rules"
	ruleshttp "github.com/meritum-hr/meritum/internal/rules/http"
	"github.com/meritum-hr/meritum/internal/shared"
	"github.com/meritum-hr/meritum/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	ledgerRepo := ledger.NewRepository(dbpool)
	updater := ledger.NewUpdater(ledgerRepo, logger, ledger.NewUpdaterMetrics(metrics.Registerer()))
	ledgerService := ledger.NewService(ledgerRepo, updater, logger)
	ledgerHandler := ledgerhttp.NewHandler(logger, ledgerService, auditLogger)

	typeCache := rules.NewTypeCache(redisClient, cfg.IncidentTypeCacheTTL, ledgerRepo)
	ruleRepo := rules.NewRepository(dbpool)
	ruleEngine := rules.NewEngine(ruleRepo, ledgerRepo, typeCache, updater, logger)
	rulesHandler := ruleshttp.NewHandler(logger, ruleEngine)

	rolloverService := rollover.NewService(ledgerRepo, logger)
	rolloverHandler := rolloverhttp.NewHandler(logger, rolloverService, ledgerRepo, auditLogger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		LedgerHandler:   ledgerHandler,
		RolloverHandler: rolloverHandler,
		RulesHandler:    rulesHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
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
