package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meritum-hr/meritum/internal/jobs"
	"github.com/meritum-hr/meritum/internal/rollover"
)

// RolloverJob triggers the monthly period close.
type RolloverJob struct {
	Service *rollover.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRolloverJob initialises the rollover handler.
func NewRolloverJob(service *rollover.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *RolloverJob {
	return &RolloverJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one monthly rollover run.
func (j *RolloverJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("rollover: handler not configured")
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskMonthlyRollover)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting monthly rollover run")

	result, err := j.Service.Run(ctx)
	if err != nil {
		resultErr = err
		logger.Error("rollover failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed monthly rollover run",
		slog.String("period_id", result.PeriodID),
		slog.Int("processed_users", result.ProcessedUsers),
		slog.Int64("marked_occurrences", result.MarkedOccurrences),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *RolloverJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMonthlyRollover))
	}
	return slog.Default().With(slog.String("job", TaskMonthlyRollover))
}

func (j *RolloverJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
