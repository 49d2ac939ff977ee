package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meritum-hr/meritum/internal/ledger"
	"github.com/meritum-hr/meritum/internal/shared"
)

// RuleSource lists the rules due for a scheduled tick.
type RuleSource interface {
	ListEnabled(ctx context.Context, freq TriggerFrequency) ([]Rule, error)
}

// LedgerStore is the slice of occurrence storage the engine needs.
type LedgerStore interface {
	ListActiveUsers(ctx context.Context, department string) ([]ledger.User, error)
	CountApprovedOccurrences(ctx context.Context, userID, incidentTypeID string, since time.Time) (int, error)
	HasOccurrenceSince(ctx context.Context, userID, incidentTypeID string, since time.Time) (bool, error)
	InsertOccurrence(ctx context.Context, o ledger.Occurrence) (ledger.Occurrence, error)
}

// TypeResolver resolves incident types referenced by rule actions.
type TypeResolver interface {
	Resolve(ctx context.Context, id string) (ledger.IncidentType, error)
}

// BalanceReactor receives created occurrences for balance accounting.
type BalanceReactor interface {
	OnOccurrenceCreated(ctx context.Context, created ledger.Occurrence)
}

// RunError is one isolated failure inside an engine run. A failure for one
// rule or one user never stops the rest of the run.
type RunError struct {
	RuleID string `json:"rule_id"`
	UserID string `json:"user_id,omitempty"`
	Err    string `json:"error"`
}

// Summary reports what a single engine run did.
type Summary struct {
	Frequency          TriggerFrequency `json:"frequency"`
	RulesEvaluated     int              `json:"rules_evaluated"`
	UsersEvaluated     int              `json:"users_evaluated"`
	OccurrencesCreated int              `json:"occurrences_created"`
	Errors             []RunError       `json:"errors,omitempty"`
}

// Engine evaluates automation rules against user occurrence history.
type Engine struct {
	rules   RuleSource
	store   LedgerStore
	types   TypeResolver
	updater BalanceReactor
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(rules RuleSource, store LedgerStore, types TypeResolver, updater BalanceReactor, logger *slog.Logger) *Engine {
	return &Engine{
		rules:   rules,
		store:   store,
		types:   types,
		updater: updater,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow overrides the engine clock. Used by tests.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// EvaluateFrequency runs every enabled rule registered for the frequency.
// Only the initial rule listing can fail the run; evaluation failures are
// collected per rule and per user in the summary.
func (e *Engine) EvaluateFrequency(ctx context.Context, freq TriggerFrequency) (Summary, error) {
	summary := Summary{Frequency: freq}

	days, ok := freq.LookbackDays()
	if !ok {
		return summary, fmt.Errorf("rules: unknown trigger frequency %q", freq)
	}
	windowStart := shared.LookbackStart(e.now(), days)

	ruleSet, err := e.rules.ListEnabled(ctx, freq)
	if err != nil {
		return summary, err
	}

	for _, rule := range ruleSet {
		summary.RulesEvaluated++
		if rule.Inert() {
			e.logger.Warn("skipping malformed rule",
				slog.String("rule_id", rule.ID),
				slog.String("rule_name", rule.Name),
				slog.Any("defects", rule.Defects))
			continue
		}

		department := ""
		if rule.TargetScope != TargetScopeAll {
			department = rule.TargetScope
		}
		users, err := e.store.ListActiveUsers(ctx, department)
		if err != nil {
			summary.Errors = append(summary.Errors, RunError{RuleID: rule.ID, Err: err.Error()})
			continue
		}

		for _, user := range users {
			summary.UsersEvaluated++
			created, err := e.evaluateForUser(ctx, rule, user, windowStart)
			if err != nil {
				summary.Errors = append(summary.Errors, RunError{RuleID: rule.ID, UserID: user.ID, Err: err.Error()})
				continue
			}
			if created {
				summary.OccurrencesCreated++
			}
		}
	}

	e.logger.Info("rule run finished",
		slog.String("frequency", string(freq)),
		slog.Int("rules", summary.RulesEvaluated),
		slog.Int("users", summary.UsersEvaluated),
		slog.Int("created", summary.OccurrencesCreated),
		slog.Int("errors", len(summary.Errors)))
	return summary, nil
}

func (e *Engine) evaluateForUser(ctx context.Context, rule Rule, user ledger.User, windowStart time.Time) (bool, error) {
	met, err := e.conditionMet(ctx, rule, user.ID, windowStart)
	if err != nil {
		return false, err
	}
	if !met {
		return false, nil
	}
	return e.fireAction(ctx, rule, user)
}

func (e *Engine) conditionMet(ctx context.Context, rule Rule, userID string, windowStart time.Time) (bool, error) {
	switch c := rule.Condition.(type) {
	case OccurrenceCountCondition:
		count, err := e.store.CountApprovedOccurrences(ctx, userID, c.IncidentTypeID, windowStart)
		if err != nil {
			return false, err
		}
		met, ok := c.Operator.Compare(count, c.Threshold)
		if !ok {
			e.logger.Warn("unknown comparison operator, treating condition as false",
				slog.String("rule_id", rule.ID),
				slog.String("operator", string(c.Operator)))
			return false, nil
		}
		return met, nil
	case AbsenceCondition:
		exists, err := e.store.HasOccurrenceSince(ctx, userID, c.IncidentTypeID, windowStart)
		if err != nil {
			return false, err
		}
		return !exists, nil
	default:
		return false, nil
	}
}

// fireAction synthesizes the occurrence prescribed by the rule action. An
// action referencing an unknown incident type is logged and skipped, never
// written with guessed points.
func (e *Engine) fireAction(ctx context.Context, rule Rule, user ledger.User) (bool, error) {
	action, ok := rule.Action.(CreateOccurrenceAction)
	if !ok {
		e.logger.Warn("unsupported rule action",
			slog.String("rule_id", rule.ID))
		return false, nil
	}

	incidentType, err := e.types.Resolve(ctx, action.IncidentTypeID)
	if err != nil {
		e.logger.Error("rule action references unresolvable incident type, skipping",
			slog.String("rule_id", rule.ID),
			slog.String("incident_type_id", action.IncidentTypeID),
			slog.String("error", err.Error()))
		return false, nil
	}

	status := action.DefaultStatus
	if !status.Valid() {
		status = ledger.StatusPending
	}
	notes := action.DefaultNotes
	if notes == "" {
		notes = "Automatically generated by rule: " + rule.Name
	}

	points := incidentType.Points
	ruleID := rule.ID
	occ := ledger.Occurrence{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		EmployeeName:     user.DisplayName,
		Department:       user.Department,
		IncidentTypeID:   incidentType.ID,
		IncidentTypeName: incidentType.Name,
		Points:           &points,
		Status:           status,
		Notes:            notes,
		RegisteredBy:     ledger.SystemActorID,
		RegisteredByName: ledger.SystemActorName,
		CreatedByRuleID:  &ruleID,
	}
	if status == ledger.StatusApproved {
		reviewedBy := ledger.SystemActorID
		reviewedByName := ledger.SystemActorName
		reviewedAt := e.now()
		occ.ReviewedBy = &reviewedBy
		occ.ReviewedByName = &reviewedByName
		occ.ReviewedAt = &reviewedAt
	}

	created, err := e.store.InsertOccurrence(ctx, occ)
	if err != nil {
		return false, fmt.Errorf("rules: create occurrence: %w", err)
	}
	e.updater.OnOccurrenceCreated(ctx, created)

	e.logger.Info("rule created occurrence",
		slog.String("rule_id", rule.ID),
		slog.String("user_id", user.ID),
		slog.String("occurrence_id", created.ID),
		slog.String("status", string(created.Status)))
	return true, nil
}
