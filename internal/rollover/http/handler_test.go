package rolloverhttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meritum-hr/meritum/internal/ledger"
	"github.com/meritum-hr/meritum/internal/rollover"
)

type fakeRollover struct {
	result rollover.Result
	err    error
}

func (f *fakeRollover) Run(ctx context.Context) (rollover.Result, error) {
	return f.result, f.err
}

type fakeDiagnostics struct {
	periodID string
}

func (f *fakeDiagnostics) ResetDiagnostics(ctx context.Context, periodID string) ([]ledger.UserDiagnostics, error) {
	f.periodID = periodID
	return []ledger.UserDiagnostics{{UserID: "user-1", Consistent: true}}, nil
}

func newTestRouter(service *fakeRollover, diag *fakeDiagnostics) http.Handler {
	handler := NewHandler(slog.Default(), service, diag, nil)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func TestRunRollover(t *testing.T) {
	service := &fakeRollover{result: rollover.Result{PeriodID: "2026-03", ProcessedUsers: 2, MarkedOccurrences: 5}}
	router := newTestRouter(service, &fakeDiagnostics{})

	req := httptest.NewRequest(http.MethodPost, "/admin/rollover", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rollover.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "2026-03", resp.PeriodID)
	require.Equal(t, 2, resp.ProcessedUsers)
}

func TestRunRolloverPartialFailure(t *testing.T) {
	service := &fakeRollover{result: rollover.Result{
		PeriodID: "2026-03",
		Errors:   []rollover.UserError{{UserID: "user-1", Stage: "snapshot", Err: "deadlock"}},
	}}
	router := newTestRouter(service, &fakeDiagnostics{})

	req := httptest.NewRequest(http.MethodPost, "/admin/rollover", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMultiStatus, rec.Code)
}

func TestResetDiagnostics(t *testing.T) {
	diag := &fakeDiagnostics{}
	router := newTestRouter(&fakeRollover{}, diag)

	req := httptest.NewRequest(http.MethodGet, "/admin/diagnostics/reset?period_id=2026-02", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2026-02", diag.periodID)

	var resp struct {
		PeriodID string                   `json:"period_id"`
		Users    []ledger.UserDiagnostics `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "2026-02", resp.PeriodID)
	require.Len(t, resp.Users, 1)
	require.True(t, resp.Users[0].Consistent)
}
