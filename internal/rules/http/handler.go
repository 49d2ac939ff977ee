// Package ruleshttp exposes on-demand rule evaluation as admin endpoints.
package ruleshttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meritum-hr/meritum/internal/platform/httpx"
	"github.com/meritum-hr/meritum/internal/rules"
)

type ruleEngine interface {
	EvaluateFrequency(ctx context.Context, freq rules.TriggerFrequency) (rules.Summary, error)
}

// Handler wires the manual rule run endpoint.
type Handler struct {
	logger   *slog.Logger
	engine   ruleEngine
	validate *validator.Validate
}

// NewHandler constructs a rules HTTP handler.
func NewHandler(logger *slog.Logger, engine ruleEngine) *Handler {
	return &Handler{logger: logger, engine: engine, validate: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/admin/rules/run", h.runRules)
}

type runRulesRequest struct {
	Frequency string `json:"frequency" validate:"required,oneof=daily weekly monthly"`
}

// runRules evaluates one frequency synchronously. The scheduled path runs
// the same engine; this endpoint exists for recovery and testing.
func (h *Handler) runRules(w http.ResponseWriter, r *http.Request) {
	var req runRulesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	summary, err := h.engine.EvaluateFrequency(r.Context(), rules.TriggerFrequency(req.Frequency))
	if err != nil {
		h.logger.Error("manual rule run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	status := http.StatusOK
	if len(summary.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, summary)
}
