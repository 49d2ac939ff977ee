package rollover

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meritum-hr/meritum/internal/ledger"
	"github.com/meritum-hr/meritum/internal/shared"
)

// chunkSize bounds how many occurrence ids a single tagging statement
// touches, keeping individual statements small on large backlogs.
const chunkSize = 450

// Store is the slice of ledger storage rollover needs.
type Store interface {
	ListUsers(ctx context.Context) ([]ledger.User, error)
	SnapshotAndZero(ctx context.Context, snapshotID, userID, periodID string, balance int64) error
	ListOpenOccurrenceIDs(ctx context.Context, userID string) ([]string, error)
	TagOccurrences(ctx context.Context, ids []string, periodID string) (int64, error)
}

// Service runs monthly period closes.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// WithNow overrides the service clock. Used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run closes the period preceding the current wall-clock month for every
// user. Only the initial user listing can fail the run; per-user failures
// are collected in the result and the run continues. Re-running after a
// partial failure converges: snapshots upsert on (user, period) and tagging
// only touches occurrences still without a period id.
func (s *Service) Run(ctx context.Context) (Result, error) {
	periodID := shared.PreviousPeriodID(s.now())
	result := Result{PeriodID: periodID}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return result, err
	}

	s.logger.Info("starting monthly rollover",
		slog.String("period_id", periodID),
		slog.Int("users", len(users)))

	for _, user := range users {
		if err := s.store.SnapshotAndZero(ctx, uuid.NewString(), user.ID, periodID, user.Balance); err != nil {
			result.Errors = append(result.Errors, UserError{UserID: user.ID, Stage: "snapshot", Err: err.Error()})
			s.logger.Error("snapshot failed, skipping user",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()))
			continue
		}

		marked, tagErrs := s.tagOpenOccurrences(ctx, user.ID, periodID)
		result.MarkedOccurrences += marked
		result.Errors = append(result.Errors, tagErrs...)

		result.ProcessedUsers++
	}

	s.logger.Info("monthly rollover finished",
		slog.String("period_id", periodID),
		slog.Int("processed_users", result.ProcessedUsers),
		slog.Int64("marked_occurrences", result.MarkedOccurrences),
		slog.Int("errors", len(result.Errors)))
	return result, nil
}

// tagOpenOccurrences stamps the user's open occurrences with the closed
// period id, in bounded chunks. A failed chunk is recorded and the
// remaining chunks still run; untagged ids are picked up by a re-run.
func (s *Service) tagOpenOccurrences(ctx context.Context, userID, periodID string) (int64, []UserError) {
	ids, err := s.store.ListOpenOccurrenceIDs(ctx, userID)
	if err != nil {
		return 0, []UserError{{UserID: userID, Stage: "list_open", Err: err.Error()}}
	}

	var (
		marked int64
		errs   []UserError
	)
	for start := 0; start < len(ids); start += chunkSize {
		end := min(start+chunkSize, len(ids))
		n, err := s.store.TagOccurrences(ctx, ids[start:end], periodID)
		if err != nil {
			errs = append(errs, UserError{UserID: userID, Stage: "tag", Err: err.Error()})
			continue
		}
		marked += n
	}
	return marked, errs
}
