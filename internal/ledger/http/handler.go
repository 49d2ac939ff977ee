// Package ledgerhttp exposes the occurrence and user lifecycle over JSON.
package ledgerhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meritum-hr/meritum/internal/ledger"
	"github.com/meritum-hr/meritum/internal/platform/httpx"
	"github.com/meritum-hr/meritum/internal/shared"
)

type ledgerService interface {
	CreateOccurrence(ctx context.Context, in ledger.CreateOccurrenceInput) (ledger.Occurrence, error)
	ReviewOccurrence(ctx context.Context, id string, status ledger.OccurrenceStatus, actorID, actorName string) (ledger.Occurrence, error)
	DeleteOccurrence(ctx context.Context, id string) (ledger.Occurrence, error)
	GetOccurrence(ctx context.Context, id string) (ledger.Occurrence, error)
	CreateUser(ctx context.Context, in ledger.CreateUserInput) (ledger.User, error)
	GetUser(ctx context.Context, id string) (ledger.User, error)
	ListUsers(ctx context.Context) ([]ledger.User, error)
	GetSnapshot(ctx context.Context, userID, periodID string) (ledger.BalanceSnapshot, error)
}

// Handler wires occurrence and user endpoints.
type Handler struct {
	logger   *slog.Logger
	service  ledgerService
	audit    *shared.AuditLogger
	validate *validator.Validate
}

// NewHandler constructs a ledger HTTP handler.
func NewHandler(logger *slog.Logger, service ledgerService, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		audit:    audit,
		validate: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/occurrences", func(r chi.Router) {
		r.Post("/", h.createOccurrence)
		r.Get("/{id}", h.getOccurrence)
		r.Patch("/{id}/status", h.reviewOccurrence)
		r.Delete("/{id}", h.deleteOccurrence)
	})
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.createUser)
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
		r.Get("/{id}/snapshots/{periodID}", h.getSnapshot)
	})
}

type createOccurrenceRequest struct {
	UserID           string `json:"user_id" validate:"required"`
	IncidentTypeID   string `json:"incident_type_id" validate:"required"`
	Status           string `json:"status" validate:"omitempty,oneof=Pending Approved Reproved"`
	Notes            string `json:"notes"`
	RegisteredBy     string `json:"registered_by" validate:"required"`
	RegisteredByName string `json:"registered_by_name" validate:"required"`
}

type reviewOccurrenceRequest struct {
	Status       string `json:"status" validate:"required,oneof=Pending Approved Reproved"`
	ReviewerID   string `json:"reviewer_id" validate:"required"`
	ReviewerName string `json:"reviewer_name" validate:"required"`
}

type createUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"required"`
	Department  string `json:"department"`
}

type occurrenceResponse struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	EmployeeName     string     `json:"employee_name"`
	Department       string     `json:"department,omitempty"`
	IncidentTypeID   string     `json:"incident_type_id"`
	IncidentTypeName string     `json:"incident_type_name"`
	Points           *int64     `json:"points"`
	Status           string     `json:"status"`
	Notes            string     `json:"notes,omitempty"`
	PeriodID         *string    `json:"period_id"`
	RegisteredBy     string     `json:"registered_by"`
	RegisteredByName string     `json:"registered_by_name"`
	CreatedByRuleID  *string    `json:"created_by_rule_id,omitempty"`
	ReviewedBy       *string    `json:"reviewed_by,omitempty"`
	ReviewedByName   *string    `json:"reviewed_by_name,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type snapshotResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	PeriodID     string    `json:"period_id"`
	FinalBalance int64     `json:"final_balance"`
	RecordedAt   time.Time `json:"recorded_at"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Department  string    `json:"department,omitempty"`
	IsActive    bool      `json:"is_active"`
	Balance     int64     `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h *Handler) createOccurrence(w http.ResponseWriter, r *http.Request) {
	var req createOccurrenceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.service.CreateOccurrence(r.Context(), ledger.CreateOccurrenceInput{
		UserID:           req.UserID,
		IncidentTypeID:   req.IncidentTypeID,
		Status:           ledger.OccurrenceStatus(req.Status),
		Notes:            req.Notes,
		RegisteredBy:     req.RegisteredBy,
		RegisteredByName: req.RegisteredByName,
	})
	if err != nil {
		h.respondDomainError(w, "create occurrence", err)
		return
	}
	h.recordAudit(r.Context(), req.RegisteredBy, "occurrence.create", created.ID, map[string]any{
		"user_id": created.UserID,
		"status":  string(created.Status),
	})
	httpx.JSON(w, http.StatusCreated, newOccurrenceResponse(created))
}

func (h *Handler) getOccurrence(w http.ResponseWriter, r *http.Request) {
	occ, err := h.service.GetOccurrence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, "get occurrence", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newOccurrenceResponse(occ))
}

func (h *Handler) reviewOccurrence(w http.ResponseWriter, r *http.Request) {
	var req reviewOccurrenceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	after, err := h.service.ReviewOccurrence(r.Context(), id, ledger.OccurrenceStatus(req.Status), req.ReviewerID, req.ReviewerName)
	if err != nil {
		h.respondDomainError(w, "review occurrence", err)
		return
	}
	h.recordAudit(r.Context(), req.ReviewerID, "occurrence.review", id, map[string]any{
		"status": req.Status,
	})
	httpx.JSON(w, http.StatusOK, newOccurrenceResponse(after))
}

func (h *Handler) deleteOccurrence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.service.DeleteOccurrence(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, "delete occurrence", err)
		return
	}
	h.recordAudit(r.Context(), r.Header.Get("X-Actor-ID"), "occurrence.delete", id, map[string]any{
		"user_id": deleted.UserID,
		"status":  string(deleted.Status),
	})
	httpx.JSON(w, http.StatusOK, newOccurrenceResponse(deleted))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	user, err := h.service.CreateUser(r.Context(), ledger.CreateUserInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Department:  req.Department,
	})
	if err != nil {
		h.respondDomainError(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newUserResponse(user))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondDomainError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.respondDomainError(w, "list users", err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.GetSnapshot(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "periodID"))
	if err != nil {
		h.respondDomainError(w, "get snapshot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshotResponse{
		ID:           snapshot.ID,
		UserID:       snapshot.UserID,
		PeriodID:     snapshot.PeriodID,
		FinalBalance: snapshot.FinalBalance,
		RecordedAt:   snapshot.RecordedAt,
	})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, ledger.ErrOccurrenceNotFound),
		errors.Is(err, ledger.ErrIncidentTypeNotFound),
		errors.Is(err, ledger.ErrSnapshotNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrInvalidStatus):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) recordAudit(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "occurrence",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}

func newOccurrenceResponse(o ledger.Occurrence) occurrenceResponse {
	return occurrenceResponse{
		ID:               o.ID,
		UserID:           o.UserID,
		EmployeeName:     o.EmployeeName,
		Department:       o.Department,
		IncidentTypeID:   o.IncidentTypeID,
		IncidentTypeName: o.IncidentTypeName,
		Points:           o.Points,
		Status:           string(o.Status),
		Notes:            o.Notes,
		PeriodID:         o.PeriodID,
		RegisteredBy:     o.RegisteredBy,
		RegisteredByName: o.RegisteredByName,
		CreatedByRuleID:  o.CreatedByRuleID,
		ReviewedBy:       o.ReviewedBy,
		ReviewedByName:   o.ReviewedByName,
		ReviewedAt:       o.ReviewedAt,
		CreatedAt:        o.CreatedAt,
	}
}

func newUserResponse(u ledger.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Department:  u.Department,
		IsActive:    u.IsActive,
		Balance:     u.Balance,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
