package ledgerhttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meritum-hr/meritum/internal/ledger"
)

type fakeService struct {
	createIn  ledger.CreateOccurrenceInput
	createErr error
	reviewed  []string
}

func (s *fakeService) CreateOccurrence(ctx context.Context, in ledger.CreateOccurrenceInput) (ledger.Occurrence, error) {
	s.createIn = in
	if s.createErr != nil {
		return ledger.Occurrence{}, s.createErr
	}
	points := int64(-3)
	return ledger.Occurrence{
		ID:     "occ-1",
		UserID: in.UserID,
		Points: &points,
		Status: ledger.StatusPending,
	}, nil
}

func (s *fakeService) ReviewOccurrence(ctx context.Context, id string, status ledger.OccurrenceStatus, actorID, actorName string) (ledger.Occurrence, error) {
	s.reviewed = append(s.reviewed, id)
	return ledger.Occurrence{ID: id, Status: status}, nil
}

func (s *fakeService) DeleteOccurrence(ctx context.Context, id string) (ledger.Occurrence, error) {
	return ledger.Occurrence{ID: id, Status: ledger.StatusApproved}, nil
}

func (s *fakeService) GetOccurrence(ctx context.Context, id string) (ledger.Occurrence, error) {
	if id != "occ-1" {
		return ledger.Occurrence{}, ledger.ErrOccurrenceNotFound
	}
	return ledger.Occurrence{ID: id, Status: ledger.StatusPending}, nil
}

func (s *fakeService) CreateUser(ctx context.Context, in ledger.CreateUserInput) (ledger.User, error) {
	return ledger.User{ID: "user-1", Email: in.Email, DisplayName: in.DisplayName, IsActive: true}, nil
}

func (s *fakeService) GetUser(ctx context.Context, id string) (ledger.User, error) {
	if id != "user-1" {
		return ledger.User{}, ledger.ErrUserNotFound
	}
	return ledger.User{ID: id, Balance: 12}, nil
}

func (s *fakeService) ListUsers(ctx context.Context) ([]ledger.User, error) {
	return []ledger.User{{ID: "user-1"}}, nil
}

func (s *fakeService) GetSnapshot(ctx context.Context, userID, periodID string) (ledger.BalanceSnapshot, error) {
	return ledger.BalanceSnapshot{ID: "snap-1", UserID: userID, PeriodID: periodID, FinalBalance: 7}, nil
}

func newTestRouter(service *fakeService) http.Handler {
	handler := NewHandler(slog.Default(), service, nil)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func TestCreateOccurrence(t *testing.T) {
	service := &fakeService{}
	router := newTestRouter(service)

	body := `{
		"user_id": "user-1",
		"incident_type_id": "late",
		"registered_by": "admin-1",
		"registered_by_name": "Admin"
	}`
	req := httptest.NewRequest(http.MethodPost, "/occurrences", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "user-1", service.createIn.UserID)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "occ-1", resp["id"])
	require.Equal(t, float64(-3), resp["points"])
}

func TestCreateOccurrenceValidation(t *testing.T) {
	router := newTestRouter(&fakeService{})

	for _, body := range []string{
		`{"incident_type_id":"late","registered_by":"a","registered_by_name":"A"}`,
		`{"user_id":"u","incident_type_id":"late","registered_by":"a","registered_by_name":"A","status":"Maybe"}`,
		`not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/occurrences", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body=%s", body)
	}
}

func TestCreateOccurrenceUnknownUser(t *testing.T) {
	service := &fakeService{createErr: ledger.ErrUserNotFound}
	router := newTestRouter(service)

	body := `{"user_id":"ghost","incident_type_id":"late","registered_by":"a","registered_by_name":"A"}`
	req := httptest.NewRequest(http.MethodPost, "/occurrences", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewOccurrence(t *testing.T) {
	service := &fakeService{}
	router := newTestRouter(service)

	body := `{"status":"Approved","reviewer_id":"admin-2","reviewer_name":"Reviewer"}`
	req := httptest.NewRequest(http.MethodPatch, "/occurrences/occ-1/status", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"occ-1"}, service.reviewed)
}

func TestDeleteOccurrence(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodDelete, "/occurrences/occ-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetUserAndSnapshot(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/users/user-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/user-1/snapshots/2026-03", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, "2026-03", snap["period_id"])
	require.Equal(t, float64(7), snap["final_balance"])
}
