// Package rollover closes out a monthly period: each user's balance is
// snapshotted and reset to zero, and the period's open occurrences are
// stamped with the closed period id.
package rollover

// UserError is one user's isolated rollover failure. A failed user never
// stops the rest of the run.
type UserError struct {
	UserID string `json:"user_id"`
	Stage  string `json:"stage"`
	Err    string `json:"error"`
}

// Result summarizes one rollover run.
type Result struct {
	PeriodID          string      `json:"period_id"`
	ProcessedUsers    int         `json:"processed_users"`
	MarkedOccurrences int64       `json:"marked_occurrences"`
	Errors            []UserError `json:"errors,omitempty"`
}
