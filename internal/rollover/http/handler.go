// Package rolloverhttp exposes the period close as admin endpoints.
package rolloverhttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meritum-hr/meritum/internal/ledger"
	"github.com/meritum-hr/meritum/internal/platform/httpx"
	"github.com/meritum-hr/meritum/internal/rollover"
	"github.com/meritum-hr/meritum/internal/shared"
)

var timeNow = time.Now

type rolloverService interface {
	Run(ctx context.Context) (rollover.Result, error)
}

type diagnosticsSource interface {
	ResetDiagnostics(ctx context.Context, periodID string) ([]ledger.UserDiagnostics, error)
}

// Handler wires the manual rollover trigger and its diagnostics.
type Handler struct {
	logger      *slog.Logger
	service     rolloverService
	diagnostics diagnosticsSource
	audit       *shared.AuditLogger
}

// NewHandler constructs a rollover HTTP handler.
func NewHandler(logger *slog.Logger, service rolloverService, diagnostics diagnosticsSource, audit *shared.AuditLogger) *Handler {
	return &Handler{logger: logger, service: service, diagnostics: diagnostics, audit: audit}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/admin/rollover", h.runRollover)
	r.Get("/admin/diagnostics/reset", h.resetDiagnostics)
}

// runRollover triggers a period close synchronously. The scheduled path
// runs the same service; this endpoint exists for recovery and testing.
func (h *Handler) runRollover(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Run(r.Context())
	if err != nil {
		h.logger.Error("manual rollover", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	if h.audit != nil {
		if err := h.audit.Record(r.Context(), shared.AuditLog{
			ActorID:  r.Header.Get("X-Actor-ID"),
			Action:   "rollover.run",
			Entity:   "period",
			EntityID: result.PeriodID,
			Meta: map[string]any{
				"processed_users":    result.ProcessedUsers,
				"marked_occurrences": result.MarkedOccurrences,
				"errors":             len(result.Errors),
			},
		}); err != nil {
			h.logger.Warn("audit record", slog.Any("error", err))
		}
	}

	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, result)
}

// resetDiagnostics reports per-user balance consistency for a period.
// The period defaults to the most recently closed one.
func (h *Handler) resetDiagnostics(w http.ResponseWriter, r *http.Request) {
	periodID := r.URL.Query().Get("period_id")
	if periodID == "" {
		periodID = shared.PreviousPeriodID(timeNow())
	}

	report, err := h.diagnostics.ResetDiagnostics(r.Context(), periodID)
	if err != nil {
		h.logger.Error("reset diagnostics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"period_id": periodID,
		"users":     report,
	})
}
