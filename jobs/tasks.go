package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meritum-hr/meritum/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRulesEvaluate runs the automation rule engine for one frequency.
	TaskRulesEvaluate = "rules:evaluate"
	// TaskMonthlyRollover closes the previous monthly period.
	TaskMonthlyRollover = "ledger:rollover"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RulesEvaluatePayload selects which rule frequency a run evaluates.
type RulesEvaluatePayload struct {
	Frequency string `json:"frequency"`
}

// NewRulesEvaluateTask constructs a rule evaluation task.
func NewRulesEvaluateTask(payload RulesEvaluatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRulesEvaluate, data), nil
}

// NewMonthlyRolloverTask constructs a monthly rollover task.
func NewMonthlyRolloverTask() *asynq.Task {
	return asynq.NewTask(TaskMonthlyRollover, nil)
}
