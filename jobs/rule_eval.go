package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meritum-hr/meritum/internal/jobs"
	"github.com/meritum-hr/meritum/internal/rules"
)

// RuleEvalJob drives the automation rule engine from scheduled ticks.
type RuleEvalJob struct {
	Engine  *rules.Engine
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRuleEvalJob initialises the rule evaluation handler.
func NewRuleEvalJob(engine *rules.Engine, logger *slog.Logger, metrics *jobmetrics.Metrics) *RuleEvalJob {
	return &RuleEvalJob{Engine: engine, Logger: logger, Metrics: metrics}
}

// Handle executes one rule evaluation run for the frequency in the payload.
func (j *RuleEvalJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("rule eval: handler not configured")
	}
	var payload RulesEvaluatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	freq := rules.TriggerFrequency(payload.Frequency)
	if _, ok := freq.LookbackDays(); !ok {
		j.logger().Error("unknown rule frequency in task payload",
			slog.String("frequency", payload.Frequency))
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskRulesEvaluate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("frequency", payload.Frequency))
	logger.Info("starting rule evaluation")

	summary, err := j.Engine.EvaluateFrequency(ctx, freq)
	if err != nil {
		resultErr = err
		logger.Error("rule evaluation failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddCreated(payload.Frequency, summary.OccurrencesCreated)

	logger.Info("completed rule evaluation",
		slog.Int("rules", summary.RulesEvaluated),
		slog.Int("users", summary.UsersEvaluated),
		slog.Int("created", summary.OccurrencesCreated),
		slog.Int("errors", len(summary.Errors)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *RuleEvalJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRulesEvaluate))
	}
	return slog.Default().With(slog.String("job", TaskRulesEvaluate))
}

func (j *RuleEvalJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
