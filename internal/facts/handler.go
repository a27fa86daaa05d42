package facts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-fin/meridian-fin/internal/platform/httpx"
	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// Handler wires HTTP endpoints for metric fact entry and browsing.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a facts HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.enter)
	r.Get("/", h.list)
}

type entryLineRequest struct {
	Kind   string  `json:"kind" validate:"required"`
	Amount float64 `json:"amount"`
}

type entryRequest struct {
	CompanyID int64              `json:"company_id" validate:"required"`
	Year      int                `json:"year" validate:"required"`
	Month     int                `json:"month" validate:"required,min=1,max=12"`
	Scenario  string             `json:"scenario" validate:"required"`
	Lines     []entryLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) enter(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company_id, period, scenario and at least one line are required")
		return
	}
	in := EntryInput{
		CompanyID: req.CompanyID,
		Year:      req.Year,
		Month:     req.Month,
		Scenario:  Scenario(req.Scenario),
		ActorID:   actorID,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, EntryLine{Kind: Kind(line.Kind), Amount: line.Amount})
	}
	if err := h.service.Enter(r.Context(), in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	companyID, err := strconv.ParseInt(query.Get("company_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "company_id must be an integer")
		return
	}
	year, err := strconv.Atoi(query.Get("year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "year must be an integer")
		return
	}
	month, err := strconv.Atoi(query.Get("month"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "month must be an integer")
		return
	}
	rows, err := h.service.ListFacts(r.Context(), companyID, year, month, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims := shared.ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "not signed in")
		return 0, false
	}
	return claims.ActorID, true
}
