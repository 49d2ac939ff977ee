package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// ErrInvalidStatus is returned when a caller supplies an unrecognized
// occurrence status.
var ErrInvalidStatus = errors.New("ledger: invalid occurrence status")

// Store is the storage surface the service needs.
type Store interface {
	GetUser(ctx context.Context, id string) (User, error)
	InsertUser(ctx context.Context, u User) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	GetOccurrence(ctx context.Context, id string) (Occurrence, error)
	InsertOccurrence(ctx context.Context, o Occurrence) (Occurrence, error)
	UpdateOccurrenceStatus(ctx context.Context, id string, status OccurrenceStatus, actorID, actorName string) (before, after Occurrence, err error)
	DeleteOccurrence(ctx context.Context, id string) (Occurrence, error)
	GetIncidentType(ctx context.Context, id string) (IncidentType, error)
	GetSnapshot(ctx context.Context, userID, periodID string) (BalanceSnapshot, error)
}

// Reactor receives occurrence lifecycle notifications for balance
// accounting. Implementations must not fail the triggering write.
type Reactor interface {
	OnOccurrenceCreated(ctx context.Context, created Occurrence)
	OnOccurrenceUpdated(ctx context.Context, before, after Occurrence)
	OnOccurrenceDeleted(ctx context.Context, deleted Occurrence)
}

// Service implements the occurrence and user lifecycle. Every write that
// can move a balance notifies the reactor after the record is durable.
type Service struct {
	store   Store
	reactor Reactor
	logger  *slog.Logger
}

func NewService(store Store, reactor Reactor, logger *slog.Logger) *Service {
	return &Service{store: store, reactor: reactor, logger: logger}
}

// CreateOccurrenceInput carries an admin-registered occurrence.
type CreateOccurrenceInput struct {
	UserID           string
	IncidentTypeID   string
	Status           OccurrenceStatus
	Notes            string
	RegisteredBy     string
	RegisteredByName string
}

// CreateOccurrence records a new occurrence. Points are captured from the
// incident type at this moment and never recomputed.
func (s *Service) CreateOccurrence(ctx context.Context, in CreateOccurrenceInput) (Occurrence, error) {
	status := in.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return Occurrence{}, ErrInvalidStatus
	}

	user, err := s.store.GetUser(ctx, in.UserID)
	if err != nil {
		return Occurrence{}, err
	}
	incidentType, err := s.store.GetIncidentType(ctx, in.IncidentTypeID)
	if err != nil {
		return Occurrence{}, err
	}

	points := incidentType.Points
	occ := Occurrence{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		EmployeeName:     user.DisplayName,
		Department:       user.Department,
		IncidentTypeID:   incidentType.ID,
		IncidentTypeName: incidentType.Name,
		Points:           &points,
		Status:           status,
		Notes:            in.Notes,
		RegisteredBy:     in.RegisteredBy,
		RegisteredByName: in.RegisteredByName,
	}

	created, err := s.store.InsertOccurrence(ctx, occ)
	if err != nil {
		return Occurrence{}, err
	}
	s.reactor.OnOccurrenceCreated(ctx, created)
	return created, nil
}

// ReviewOccurrence moves an occurrence to a new status, stamping the
// reviewer. The balance reaction sees both sides of the transition.
func (s *Service) ReviewOccurrence(ctx context.Context, id string, status OccurrenceStatus, actorID, actorName string) (Occurrence, error) {
	if !status.Valid() {
		return Occurrence{}, ErrInvalidStatus
	}
	before, after, err := s.store.UpdateOccurrenceStatus(ctx, id, status, actorID, actorName)
	if err != nil {
		return Occurrence{}, err
	}
	s.reactor.OnOccurrenceUpdated(ctx, before, after)
	return after, nil
}

// DeleteOccurrence removes an occurrence record. An Approved deletion
// reverses its points.
func (s *Service) DeleteOccurrence(ctx context.Context, id string) (Occurrence, error) {
	deleted, err := s.store.DeleteOccurrence(ctx, id)
	if err != nil {
		return Occurrence{}, err
	}
	s.reactor.OnOccurrenceDeleted(ctx, deleted)
	return deleted, nil
}

// GetOccurrence returns one occurrence by id.
func (s *Service) GetOccurrence(ctx context.Context, id string) (Occurrence, error) {
	return s.store.GetOccurrence(ctx, id)
}

// CreateUserInput carries a new employee account.
type CreateUserInput struct {
	Email       string
	DisplayName string
	Department  string
}

// CreateUser registers an employee account with a zero starting balance.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	return s.store.InsertUser(ctx, User{
		ID:          uuid.NewString(),
		Email:       in.Email,
		DisplayName: in.DisplayName,
		Department:  in.Department,
		IsActive:    true,
	})
}

// GetUser returns one user by id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers returns every user account.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// GetSnapshot returns a user's closed-period balance snapshot.
func (s *Service) GetSnapshot(ctx context.Context, userID, periodID string) (BalanceSnapshot, error) {
	return s.store.GetSnapshot(ctx, userID, periodID)
}
