package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	users       map[string]User
	occurrences map[string]Occurrence
	types       map[string]IncidentType
	snapshots   map[string]BalanceSnapshot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:       make(map[string]User),
		occurrences: make(map[string]Occurrence),
		types:       make(map[string]IncidentType),
		snapshots:   make(map[string]BalanceSnapshot),
	}
}

func (s *memoryStore) GetUser(ctx context.Context, id string) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *memoryStore) InsertUser(ctx context.Context, u User) (User, error) {
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return u, nil
}

func (s *memoryStore) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *memoryStore) GetOccurrence(ctx context.Context, id string) (Occurrence, error) {
	o, ok := s.occurrences[id]
	if !ok {
		return Occurrence{}, ErrOccurrenceNotFound
	}
	return o, nil
}

func (s *memoryStore) InsertOccurrence(ctx context.Context, o Occurrence) (Occurrence, error) {
	o.CreatedAt = time.Now()
	s.occurrences[o.ID] = o
	return o, nil
}

func (s *memoryStore) UpdateOccurrenceStatus(ctx context.Context, id string, status OccurrenceStatus, actorID, actorName string) (Occurrence, Occurrence, error) {
	before, ok := s.occurrences[id]
	if !ok {
		return Occurrence{}, Occurrence{}, ErrOccurrenceNotFound
	}
	after := before
	after.Status = status
	if status == StatusPending {
		after.ReviewedBy = nil
		after.ReviewedByName = nil
		after.ReviewedAt = nil
	} else {
		now := time.Now()
		after.ReviewedBy = &actorID
		after.ReviewedByName = &actorName
		after.ReviewedAt = &now
	}
	s.occurrences[id] = after
	return before, after, nil
}

func (s *memoryStore) DeleteOccurrence(ctx context.Context, id string) (Occurrence, error) {
	o, ok := s.occurrences[id]
	if !ok {
		return Occurrence{}, ErrOccurrenceNotFound
	}
	delete(s.occurrences, id)
	return o, nil
}

func (s *memoryStore) GetIncidentType(ctx context.Context, id string) (IncidentType, error) {
	t, ok := s.types[id]
	if !ok {
		return IncidentType{}, ErrIncidentTypeNotFound
	}
	return t, nil
}

func (s *memoryStore) GetSnapshot(ctx context.Context, userID, periodID string) (BalanceSnapshot, error) {
	snap, ok := s.snapshots[userID+"/"+periodID]
	if !ok {
		return BalanceSnapshot{}, ErrSnapshotNotFound
	}
	return snap, nil
}

type recordingReactor struct {
	created []Occurrence
	updated [][2]Occurrence
	deleted []Occurrence
}

func (r *recordingReactor) OnOccurrenceCreated(ctx context.Context, created Occurrence) {
	r.created = append(r.created, created)
}

func (r *recordingReactor) OnOccurrenceUpdated(ctx context.Context, before, after Occurrence) {
	r.updated = append(r.updated, [2]Occurrence{before, after})
}

func (r *recordingReactor) OnOccurrenceDeleted(ctx context.Context, deleted Occurrence) {
	r.deleted = append(r.deleted, deleted)
}

func seedUserAndType(store *memoryStore) {
	store.users["user-1"] = User{ID: "user-1", Email: "ana@example.com", DisplayName: "Ana", Department: "logistics", IsActive: true}
	store.types["late"] = IncidentType{ID: "late", Name: "Late arrival", Points: -3}
}

func TestCreateOccurrenceCapturesPoints(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedUserAndType(store)
	reactor := &recordingReactor{}
	svc := NewService(store, reactor, nil)

	created, err := svc.CreateOccurrence(ctx, CreateOccurrenceInput{
		UserID:           "user-1",
		IncidentTypeID:   "late",
		RegisteredBy:     "admin-1",
		RegisteredByName: "Admin",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
	require.NotNil(t, created.Points)
	require.Equal(t, int64(-3), *created.Points)
	require.Equal(t, "Ana", created.EmployeeName)
	require.Equal(t, "Late arrival", created.IncidentTypeName)
	require.Len(t, reactor.created, 1)

	// Changing the catalog later must not affect the stored record.
	store.types["late"] = IncidentType{ID: "late", Name: "Late arrival", Points: -10}
	stored, err := svc.GetOccurrence(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(-3), *stored.Points)
}

func TestCreateOccurrenceUnknownReferences(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedUserAndType(store)
	svc := NewService(store, &recordingReactor{}, nil)

	_, err := svc.CreateOccurrence(ctx, CreateOccurrenceInput{UserID: "ghost", IncidentTypeID: "late"})
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.CreateOccurrence(ctx, CreateOccurrenceInput{UserID: "user-1", IncidentTypeID: "ghost"})
	require.ErrorIs(t, err, ErrIncidentTypeNotFound)

	_, err = svc.CreateOccurrence(ctx, CreateOccurrenceInput{UserID: "user-1", IncidentTypeID: "late", Status: "Bogus"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestReviewOccurrenceNotifiesBothSides(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedUserAndType(store)
	reactor := &recordingReactor{}
	svc := NewService(store, reactor, nil)

	created, err := svc.CreateOccurrence(ctx, CreateOccurrenceInput{
		UserID:         "user-1",
		IncidentTypeID: "late",
		RegisteredBy:   "admin-1",
	})
	require.NoError(t, err)

	after, err := svc.ReviewOccurrence(ctx, created.ID, StatusApproved, "admin-2", "Reviewer")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, after.Status)
	require.NotNil(t, after.ReviewedBy)
	require.Equal(t, "admin-2", *after.ReviewedBy)

	require.Len(t, reactor.updated, 1)
	require.Equal(t, StatusPending, reactor.updated[0][0].Status)
	require.Equal(t, StatusApproved, reactor.updated[0][1].Status)
}

func TestDeleteOccurrenceNotifiesReactor(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedUserAndType(store)
	reactor := &recordingReactor{}
	svc := NewService(store, reactor, nil)

	created, err := svc.CreateOccurrence(ctx, CreateOccurrenceInput{UserID: "user-1", IncidentTypeID: "late", Status: StatusApproved})
	require.NoError(t, err)

	deleted, err := svc.DeleteOccurrence(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, deleted.Status)
	require.Len(t, reactor.deleted, 1)

	_, err = svc.GetOccurrence(ctx, created.ID)
	require.ErrorIs(t, err, ErrOccurrenceNotFound)
}
