// Package ledger owns the durable point accounting state: users and their
// running balances, immutable occurrence records, and per-period balance
// snapshots. All balance mutations flow through this package.
package ledger

import (
	"errors"
	"time"
)

// OccurrenceStatus is the approval state of an occurrence.
type OccurrenceStatus string

// Recognized occurrence statuses.
const (
	StatusPending  OccurrenceStatus = "Pending"
	StatusApproved OccurrenceStatus = "Approved"
	StatusReproved OccurrenceStatus = "Reproved"
)

// Valid reports whether the status is one of the recognized values.
func (s OccurrenceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusReproved:
		return true
	}
	return false
}

// Actor identity stamped on occurrences created by the rule engine.
const (
	SystemActorID   = "system/automatic"
	SystemActorName = "System (automation rule)"
)

// Sentinel errors returned by the repository.
var (
	ErrUserNotFound         = errors.New("ledger: user not found")
	ErrOccurrenceNotFound   = errors.New("ledger: occurrence not found")
	ErrIncidentTypeNotFound = errors.New("ledger: incident type not found")
	ErrSnapshotNotFound     = errors.New("ledger: snapshot not found")
)

// User is an employee account carrying a running point balance.
// Balance equals the sum of points over Approved occurrences with a nil
// period id, at any quiescent point.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Department  string
	IsActive    bool
	Balance     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IncidentType is a catalog entry defining the point value for a category
// of occurrence.
type IncidentType struct {
	ID     string
	Name   string
	Points int64
}

// Occurrence is a single recorded incident attributable to a user. Points
// are captured from the incident type at creation time and never change;
// only Status and PeriodID mutate over the record's lifetime. Points is a
// pointer so missing or malformed legacy data stays distinguishable from
// an explicit zero.
type Occurrence struct {
	ID               string
	UserID           string
	EmployeeName     string
	Department       string
	IncidentTypeID   string
	IncidentTypeName string
	Points           *int64
	Status           OccurrenceStatus
	Notes            string
	PeriodID         *string
	RegisteredBy     string
	RegisteredByName string
	CreatedByRuleID  *string
	ReviewedBy       *string
	ReviewedByName   *string
	ReviewedAt       *time.Time
	CreatedAt        time.Time
}

// BalanceSnapshot captures a user's final balance at the close of a period.
// At most one snapshot exists per (user, period); the first write wins and
// rollover re-runs leave it untouched.
type BalanceSnapshot struct {
	ID           string
	UserID       string
	PeriodID     string
	FinalBalance int64
	RecordedAt   time.Time
}

// PointsOf returns the occurrence's points value if it is present.
func (o Occurrence) PointsOf() (int64, bool) {
	if o.Points == nil {
		return 0, false
	}
	return *o.Points, true
}
