package ledger

import (
	"context"
	"log/slog"
)

// Change is the slice of an occurrence's state the balance math depends on.
// A nil *Change stands for non-existence (before creation, after deletion).
type Change struct {
	Status OccurrenceStatus
	Points *int64
}

// DeltaReason classifies the outcome of a delta computation. It is the label
// carried into logs and metrics so skipped updates are never silently folded
// into no-ops.
type DeltaReason string

// Delta outcomes.
const (
	ReasonApproval      DeltaReason = "approval"
	ReasonReversal      DeltaReason = "reversal"
	ReasonNoChange      DeltaReason = "no_change"
	ReasonMissingPoints DeltaReason = "missing_points"
)

// BalanceDelta computes the signed balance adjustment for a transition from
// before to after. It is a pure function and the single source of truth for
// balance math: occurrence creation, status updates, and deletion all reduce
// to the same call.
//
// Transitions into Approved add the new points value; transitions out of
// Approved subtract the previous points value (the amount originally added).
// Everything else is a no-op.
func BalanceDelta(before, after *Change) (int64, DeltaReason) {
	wasApproved := before != nil && before.Status == StatusApproved
	isApproved := after != nil && after.Status == StatusApproved

	switch {
	case !wasApproved && isApproved:
		if after.Points == nil {
			return 0, ReasonMissingPoints
		}
		return *after.Points, ReasonApproval
	case wasApproved && !isApproved:
		if before.Points == nil {
			return 0, ReasonMissingPoints
		}
		return -*before.Points, ReasonReversal
	default:
		return 0, ReasonNoChange
	}
}

// BalanceStore is the single mutation point the updater needs: an atomic
// increment against a user's balance.
type BalanceStore interface {
	IncrementBalance(ctx context.Context, userID string, delta int64) error
}

// Updater reacts to occurrence lifecycle events by applying balance deltas.
// It is the only component that mutates balances outside of rollover.
//
// Updater methods deliberately return nothing: they are reactions to already
// committed facts, and a storage failure must not bounce the triggering
// event into a retry. Failures surface through logs and metrics instead;
// the balance stays transiently inconsistent until reconciled.
type Updater struct {
	store   BalanceStore
	logger  *slog.Logger
	metrics *UpdaterMetrics
}

// NewUpdater constructs an Updater.
func NewUpdater(store BalanceStore, logger *slog.Logger, metrics *UpdaterMetrics) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{store: store, logger: logger, metrics: metrics}
}

// OnOccurrenceCreated applies the balance effect of a newly created
// occurrence. Creating an Approved occurrence produces the same delta as a
// Pending occurrence transitioning to Approved.
func (u *Updater) OnOccurrenceCreated(ctx context.Context, created Occurrence) {
	u.apply(ctx, created.ID, created.UserID, nil, &Change{Status: created.Status, Points: created.Points})
}

// OnOccurrenceUpdated applies the balance effect of a status transition.
func (u *Updater) OnOccurrenceUpdated(ctx context.Context, before, after Occurrence) {
	userID := after.UserID
	if userID == "" {
		userID = before.UserID
	}
	u.apply(ctx, after.ID, userID,
		&Change{Status: before.Status, Points: before.Points},
		&Change{Status: after.Status, Points: after.Points})
}

// OnOccurrenceDeleted reverses the balance effect of a deleted occurrence
// that was Approved at deletion time.
func (u *Updater) OnOccurrenceDeleted(ctx context.Context, deleted Occurrence) {
	u.apply(ctx, deleted.ID, deleted.UserID, &Change{Status: deleted.Status, Points: deleted.Points}, nil)
}

func (u *Updater) apply(ctx context.Context, occurrenceID, userID string, before, after *Change) {
	logger := u.logger.With(
		slog.String("occurrence_id", occurrenceID),
		slog.String("user_id", userID),
	)
	if userID == "" {
		logger.Error("balance update aborted, occurrence has no user")
		u.metrics.observe("skipped", string(ReasonMissingPoints))
		return
	}

	delta, reason := BalanceDelta(before, after)
	switch reason {
	case ReasonMissingPoints:
		logger.Warn("balance update skipped, points missing or malformed")
		u.metrics.observe("skipped", string(reason))
		return
	case ReasonNoChange:
		logger.Debug("no balance change needed", slog.String("reason", string(reason)))
		u.metrics.observe("noop", string(reason))
		return
	}

	if err := u.store.IncrementBalance(ctx, userID, delta); err != nil {
		logger.Error("balance increment failed",
			slog.Int64("delta", delta),
			slog.String("reason", string(reason)),
			slog.Any("error", err),
		)
		u.metrics.observe("failed", string(reason))
		return
	}

	logger.Info("balance updated",
		slog.Int64("delta", delta),
		slog.String("reason", string(reason)),
	)
	u.metrics.observe("applied", string(reason))
}
