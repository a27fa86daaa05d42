// Package workflowhttp exposes the report workflow over JSON.
package workflowhttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-fin/meridian-fin/internal/platform/httpx"
	"github.com/meridian-fin/meridian-fin/internal/shared"
	"github.com/meridian-fin/meridian-fin/internal/workflow"
)

type workflowService interface {
	CreateOrGetDraft(ctx context.Context, companyID int64, year, month int, actorID int64) (workflow.Report, error)
	Submit(ctx context.Context, reportID uuid.UUID, actorID int64) (workflow.Outcome, error)
	Approve(ctx context.Context, reportID uuid.UUID, actorID int64) (workflow.Outcome, error)
	Reject(ctx context.Context, reportID uuid.UUID, actorID int64, reason string) (workflow.Outcome, error)
	AddComment(ctx context.Context, reportID uuid.UUID, actorID int64, content string) (workflow.Comment, error)
	GetReport(ctx context.Context, reportID uuid.UUID, actorID int64) (workflow.Report, error)
	Timeline(ctx context.Context, reportID uuid.UUID, actorID int64) ([]workflow.StatusChange, []workflow.Comment, error)
}

// EffectSink receives a transition's side effects after the handler
// has a committed outcome in hand.
type EffectSink interface {
	Dispatch(ctx context.Context, outcome workflow.Outcome)
}

// TransitionObserver counts workflow transitions for metrics.
type TransitionObserver interface {
	ReportTransition(toStatus string)
}

// Handler wires HTTP endpoints for the report workflow.
type Handler struct {
	logger    *slog.Logger
	service   workflowService
	effects   EffectSink
	observer  TransitionObserver
	validator *validator.Validate
}

// NewHandler constructs a workflow HTTP handler. Effects and observer
// may be nil.
func NewHandler(logger *slog.Logger, service workflowService, effects EffectSink, observer TransitionObserver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		effects:   effects,
		observer:  observer,
		validator: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createDraft)
	r.Get("/{id}", h.getReport)
	r.Get("/{id}/timeline", h.timeline)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/comments", h.addComment)
}

type createDraftRequest struct {
	CompanyID int64 `json:"company_id" validate:"required"`
	Year      int   `json:"year" validate:"required"`
	Month     int   `json:"month" validate:"required,min=1,max=12"`
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createDraftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company_id, year and month are required")
		return
	}
	report, err := h.service.CreateOrGetDraft(r.Context(), req.CompanyID, req.Year, req.Month, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}
	report, err := h.service.GetReport(r.Context(), id, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}
	history, comments, err := h.service.Timeline(r.Context(), id, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"history":  history,
		"comments": comments,
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, actorID int64) (workflow.Outcome, error) {
		return h.service.Submit(ctx, id, actorID)
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id uuid.UUID, actorID int64) (workflow.Outcome, error) {
		return h.service.Approve(ctx, id, actorID)
	})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	outcome, err := h.service.Reject(r.Context(), id, actorID, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.finish(r.Context(), outcome)
	httpx.JSON(w, http.StatusOK, outcome.Report)
}

type commentRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "content is required")
		return
	}
	comment, err := h.service.AddComment(r.Context(), id, actorID, req.Content)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, comment)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, int64) (workflow.Outcome, error)) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}
	outcome, err := op(r.Context(), id, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.finish(r.Context(), outcome)
	httpx.JSON(w, http.StatusOK, outcome.Report)
}

// finish dispatches side effects and counts the transition. The
// transition itself is already committed; nothing here can fail the
// request.
func (h *Handler) finish(ctx context.Context, outcome workflow.Outcome) {
	if h.observer != nil {
		h.observer.ReportTransition(string(outcome.Report.Status))
	}
	if h.effects != nil {
		h.effects.Dispatch(context.WithoutCancel(ctx), outcome)
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims := shared.ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "not signed in")
		return 0, false
	}
	return claims.ActorID, true
}

func (h *Handler) reportID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "report id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
