package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meritum-hr/meritum/internal/app"
	jobmetrics "github.com/meritum-hr/meritum/internal/jobs"
	"github.com/meritum-hr/meritum/internal/ledger"
	"github.com/meritum-hr/meritum/internal/platform/db"
	"github.com/meritum-hr/meritum/internal/rollover"
	"github.com/meritum-hr/meritum/internal/rules"
	"github.com/meritum-hr/meritum/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	metrics := jobmetrics.NewMetrics(nil)

	ledgerRepo := ledger.NewRepository(pool)
	updater := ledger.NewUpdater(ledgerRepo, logger, ledger.NewUpdaterMetrics(nil))

	typeCache := rules.NewTypeCache(redisClient, cfg.IncidentTypeCacheTTL, ledgerRepo)
	ruleRepo := rules.NewRepository(pool)
	ruleEngine := rules.NewEngine(ruleRepo, ledgerRepo, typeCache, updater, logger)
	ruleEvalJob := jobs.NewRuleEvalJob(ruleEngine, logger, metrics)

	rolloverService := rollover.NewService(ledgerRepo, logger)
	rolloverJob := jobs.NewRolloverJob(rolloverService, logger, metrics)

	dailyTask, err := jobs.NewRulesEvaluateTask(jobs.RulesEvaluatePayload{Frequency: string(rules.FreqDaily)})
	if err != nil {
		logger.Error("build daily rules task", slog.Any("error", err))
		os.Exit(1)
	}
	weeklyTask, err := jobs.NewRulesEvaluateTask(jobs.RulesEvaluatePayload{Frequency: string(rules.FreqWeekly)})
	if err != nil {
		logger.Error("build weekly rules task", slog.Any("error", err))
		os.Exit(1)
	}
	monthlyTask, err := jobs.NewRulesEvaluateTask(jobs.RulesEvaluatePayload{Frequency: string(rules.FreqMonthly)})
	if err != nil {
		logger.Error("build monthly rules task", slog.Any("error", err))
		os.Exit(1)
	}
	rolloverTask := jobs.NewMonthlyRolloverTask()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRulesEvaluate, Handler: ruleEvalJob.Handle},
			{Type: jobs.TaskMonthlyRollover, Handler: rolloverJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DailyRulesSpec, Task: dailyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.WeeklyRulesSpec, Task: weeklyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.MonthlyRulesSpec, Task: monthlyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.MonthlyRolloverSpec, Task: rolloverTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
