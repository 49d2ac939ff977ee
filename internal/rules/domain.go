// Package rules implements the automation rule engine: scheduled predicates
// that scan each in-scope user's recent occurrence history and synthesize
// new occurrences when a condition holds.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meritum-hr/meritum/internal/ledger"
)

// TriggerFrequency selects which scheduled tick evaluates a rule.
type TriggerFrequency string

// Supported trigger frequencies.
const (
	FreqDaily   TriggerFrequency = "daily"
	FreqWeekly  TriggerFrequency = "weekly"
	FreqMonthly TriggerFrequency = "monthly"
)

// LookbackDays maps a frequency to its condition look-back window. The
// monthly window is a fixed 30 days, not calendar-month aware.
func (f TriggerFrequency) LookbackDays() (int, bool) {
	switch f {
	case FreqDaily:
		return 1, true
	case FreqWeekly:
		return 7, true
	case FreqMonthly:
		return 30, true
	}
	return 0, false
}

// TargetScopeAll marks a rule applying to every active user.
const TargetScopeAll = "all"

// ComparisonOperator compares an occurrence count against a threshold.
type ComparisonOperator string

// Recognized comparison operators. The wire names match the rule documents
// authored by the admin tooling.
const (
	OpGreaterThan          ComparisonOperator = "greaterThan"
	OpLessThan             ComparisonOperator = "lessThan"
	OpEqualTo              ComparisonOperator = "equalTo"
	OpGreaterThanOrEqualTo ComparisonOperator = "greaterThanOrEqualTo"
	OpLessThanOrEqualTo    ComparisonOperator = "lessThanOrEqualTo"
)

// Compare applies the operator. ok is false for an unknown operator, which
// the engine records and treats as condition-false.
func (op ComparisonOperator) Compare(count, threshold int) (met, ok bool) {
	switch op {
	case OpGreaterThan:
		return count > threshold, true
	case OpLessThan:
		return count < threshold, true
	case OpEqualTo:
		return count == threshold, true
	case OpGreaterThanOrEqualTo:
		return count >= threshold, true
	case OpLessThanOrEqualTo:
		return count <= threshold, true
	}
	return false, false
}

// Condition is the closed set of rule predicates.
type Condition interface {
	conditionKind() string
}

// OccurrenceCountCondition is true when the user's count of Approved
// occurrences of the given incident type inside the look-back window
// satisfies the operator against the threshold.
type OccurrenceCountCondition struct {
	IncidentTypeID string
	Threshold      int
	Operator       ComparisonOperator
}

func (OccurrenceCountCondition) conditionKind() string { return "occurrenceCount" }

// AbsenceCondition is true when no occurrence of the given incident type
// exists for the user inside the look-back window, regardless of status.
type AbsenceCondition struct {
	IncidentTypeID string
}

func (AbsenceCondition) conditionKind() string { return "absenceOfOccurrence" }

// Action is the closed set of rule effects.
type Action interface {
	actionKind() string
}

// CreateOccurrenceAction synthesizes a new occurrence for the matched user.
type CreateOccurrenceAction struct {
	IncidentTypeID string
	DefaultStatus  ledger.OccurrenceStatus
	DefaultNotes   string
}

func (CreateOccurrenceAction) actionKind() string { return "createOccurrence" }

// Rule is an automation rule as authored by the admin tooling. Condition or
// Action is nil when the stored document was malformed; such a rule is
// inert and the decode reasons are kept for logging.
type Rule struct {
	ID          string
	Name        string
	IsEnabled   bool
	Frequency   TriggerFrequency
	TargetScope string
	Condition   Condition
	Action      Action
	Defects     []string
}

// Inert reports whether the rule can never fire.
func (r Rule) Inert() bool {
	return r.Condition == nil || r.Action == nil
}

// rawCondition and rawAction mirror the JSON documents stored in
// automation_rules. Field names are the original wire format.
type rawCondition struct {
	Type           string             `json:"type"`
	IncidentTypeID string             `json:"incidentTypeIdCondition"`
	Threshold      *int               `json:"threshold"`
	Operator       ComparisonOperator `json:"comparisonOperator"`
}

type rawAction struct {
	Type           string `json:"type"`
	IncidentTypeID string `json:"incidentTypeIdAction"`
	DefaultStatus  string `json:"defaultStatus"`
	DefaultNotes   string `json:"defaultNotes"`
}

// DecodeCondition parses a stored condition document into its variant.
// Unknown types and missing required fields yield an error; the rule stays
// inert rather than partially applied.
func DecodeCondition(data []byte) (Condition, error) {
	if len(data) == 0 {
		return nil, errors.New("rules: condition missing")
	}
	var raw rawCondition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rules: decode condition: %w", err)
	}
	switch raw.Type {
	case "occurrenceCount":
		if raw.IncidentTypeID == "" || raw.Threshold == nil || raw.Operator == "" {
			return nil, errors.New("rules: occurrenceCount condition missing required fields")
		}
		return OccurrenceCountCondition{
			IncidentTypeID: raw.IncidentTypeID,
			Threshold:      *raw.Threshold,
			Operator:       raw.Operator,
		}, nil
	case "absenceOfOccurrence":
		if raw.IncidentTypeID == "" {
			return nil, errors.New("rules: absenceOfOccurrence condition missing incident type")
		}
		return AbsenceCondition{IncidentTypeID: raw.IncidentTypeID}, nil
	case "":
		return nil, errors.New("rules: condition has no type")
	default:
		return nil, fmt.Errorf("rules: unsupported condition type %q", raw.Type)
	}
}

// DecodeAction parses a stored action document into its variant.
func DecodeAction(data []byte) (Action, error) {
	if len(data) == 0 {
		return nil, errors.New("rules: action missing")
	}
	var raw rawAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("rules: decode action: %w", err)
	}
	switch raw.Type {
	case "createOccurrence":
		if raw.IncidentTypeID == "" || raw.DefaultStatus == "" {
			return nil, errors.New("rules: createOccurrence action missing required fields")
		}
		return CreateOccurrenceAction{
			IncidentTypeID: raw.IncidentTypeID,
			DefaultStatus:  ledger.OccurrenceStatus(raw.DefaultStatus),
			DefaultNotes:   raw.DefaultNotes,
		}, nil
	case "":
		return nil, errors.New("rules: action has no type")
	default:
		return nil, fmt.Errorf("rules: unsupported action type %q", raw.Type)
	}
}
