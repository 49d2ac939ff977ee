package rollover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meritum-hr/meritum/internal/ledger"
)

var testNow = time.Date(2026, time.April, 2, 5, 0, 0, 0, time.UTC)

type memoryRolloverStore struct {
	users        []ledger.User
	open         map[string][]string
	balances     map[string]int64
	snapshots    map[string]int64
	snapshotErr  map[string]error
	listUsersErr error
	tagCalls     [][]string
	tagFailAt    int
}

func newMemoryRolloverStore() *memoryRolloverStore {
	return &memoryRolloverStore{
		open:      make(map[string][]string),
		balances:  make(map[string]int64),
		snapshots: make(map[string]int64),
		tagFailAt: -1,
	}
}

func (s *memoryRolloverStore) addUser(id string, balance int64, openOccurrences int) {
	s.users = append(s.users, ledger.User{ID: id, Balance: balance})
	s.balances[id] = balance
	for i := 0; i < openOccurrences; i++ {
		s.open[id] = append(s.open[id], fmt.Sprintf("%s-occ-%d", id, i))
	}
}

func (s *memoryRolloverStore) ListUsers(ctx context.Context) ([]ledger.User, error) {
	if s.listUsersErr != nil {
		return nil, s.listUsersErr
	}
	out := make([]ledger.User, len(s.users))
	for i, u := range s.users {
		u.Balance = s.balances[u.ID]
		out[i] = u
	}
	return out, nil
}

func (s *memoryRolloverStore) SnapshotAndZero(ctx context.Context, snapshotID, userID, periodID string, balance int64) error {
	if err := s.snapshotErr[userID]; err != nil {
		return err
	}
	// First write wins, matching the ON CONFLICT DO NOTHING insert.
	if _, ok := s.snapshots[userID+"/"+periodID]; !ok {
		s.snapshots[userID+"/"+periodID] = balance
	}
	s.balances[userID] = 0
	return nil
}

func (s *memoryRolloverStore) ListOpenOccurrenceIDs(ctx context.Context, userID string) ([]string, error) {
	return append([]string(nil), s.open[userID]...), nil
}

func (s *memoryRolloverStore) TagOccurrences(ctx context.Context, ids []string, periodID string) (int64, error) {
	call := len(s.tagCalls)
	s.tagCalls = append(s.tagCalls, append([]string(nil), ids...))
	if s.tagFailAt == call {
		return 0, errors.New("statement timeout")
	}
	tagged := int64(0)
	for userID, open := range s.open {
		remaining := open[:0]
		for _, id := range open {
			found := false
			for _, want := range ids {
				if id == want {
					found = true
					break
				}
			}
			if found {
				tagged++
			} else {
				remaining = append(remaining, id)
			}
		}
		s.open[userID] = remaining
	}
	return tagged, nil
}

func newTestService(store *memoryRolloverStore) *Service {
	return NewService(store, slog.Default()).WithNow(func() time.Time { return testNow })
}

func TestRunSnapshotsAndTags(t *testing.T) {
	store := newMemoryRolloverStore()
	store.addUser("user-1", 12, 3)
	store.addUser("user-2", -5, 0)

	result, err := newTestService(store).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2026-03", result.PeriodID)
	require.Equal(t, 2, result.ProcessedUsers)
	require.Equal(t, int64(3), result.MarkedOccurrences)
	require.Empty(t, result.Errors)

	// Snapshots hold the pre-reset balances.
	require.Equal(t, int64(12), store.snapshots["user-1/2026-03"])
	require.Equal(t, int64(-5), store.snapshots["user-2/2026-03"])
	require.Zero(t, store.balances["user-1"])
	require.Zero(t, store.balances["user-2"])
	require.Empty(t, store.open["user-1"])
}

func TestRunChunksLargeBacklogs(t *testing.T) {
	store := newMemoryRolloverStore()
	store.addUser("user-1", 0, 1000)

	result, err := newTestService(store).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1000), result.MarkedOccurrences)

	require.Len(t, store.tagCalls, 3)
	require.Len(t, store.tagCalls[0], 450)
	require.Len(t, store.tagCalls[1], 450)
	require.Len(t, store.tagCalls[2], 100)
}

func TestRunIsolatesSnapshotFailures(t *testing.T) {
	store := newMemoryRolloverStore()
	store.addUser("broken", 7, 2)
	store.addUser("healthy", 3, 1)
	store.snapshotErr = map[string]error{"broken": errors.New("deadlock detected")}

	result, err := newTestService(store).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.ProcessedUsers)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "broken", result.Errors[0].UserID)
	require.Equal(t, "snapshot", result.Errors[0].Stage)

	// The failed user keeps balance and open occurrences for a re-run.
	require.Equal(t, int64(7), store.balances["broken"])
	require.Len(t, store.open["broken"], 2)
	require.Zero(t, store.balances["healthy"])
	require.Empty(t, store.open["healthy"])
}

func TestRunContinuesPastChunkFailure(t *testing.T) {
	store := newMemoryRolloverStore()
	store.addUser("user-1", 0, 1000)
	store.tagFailAt = 1

	result, err := newTestService(store).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.ProcessedUsers)
	require.Equal(t, int64(550), result.MarkedOccurrences)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "tag", result.Errors[0].Stage)
	require.Len(t, store.tagCalls, 3, "remaining chunks still run after a failure")

	// The failed chunk's occurrences stay open for a re-run.
	require.Len(t, store.open["user-1"], 450)
}

func TestRunRerunConverges(t *testing.T) {
	store := newMemoryRolloverStore()
	store.addUser("broken", 9, 2)
	store.addUser("healthy", 4, 1)
	store.snapshotErr = map[string]error{"broken": errors.New("deadlock detected")}

	svc := newTestService(store)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	store.snapshotErr = nil
	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Equal(t, 2, result.ProcessedUsers)

	// Second run picks up only what the first one missed.
	require.Equal(t, int64(2), result.MarkedOccurrences)
	require.Equal(t, int64(9), store.snapshots["broken/2026-03"])
	require.Equal(t, int64(4), store.snapshots["healthy/2026-03"])
	require.Zero(t, store.balances["broken"])
}

func TestRunListUsersFailureIsFatal(t *testing.T) {
	store := newMemoryRolloverStore()
	store.listUsersErr = errors.New("connection refused")

	_, err := newTestService(store).Run(context.Background())
	require.Error(t, err)
}
