// Package aggregationhttp exposes group performance queries over JSON.
package aggregationhttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-fin/meridian-fin/internal/aggregation"
	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/platform/httpx"
	"github.com/meridian-fin/meridian-fin/internal/shared"
)

const defaultRankLimit = 10

type aggregationService interface {
	Aggregate(ctx context.Context, req aggregation.Request) (aggregation.GroupSummary, error)
	Rank(ctx context.Context, req aggregation.Request, metric facts.Kind, direction aggregation.RankDirection, limit int) ([]aggregation.RankEntry, error)
}

// Handler wires HTTP endpoints for aggregation queries.
type Handler struct {
	logger  *slog.Logger
	service aggregationService
}

// NewHandler constructs an aggregation HTTP handler.
func NewHandler(logger *slog.Logger, service aggregationService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.summary)
	r.Get("/ranking", h.ranking)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	group, err := h.service.Aggregate(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) ranking(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	metric := facts.Kind(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = facts.KindRevenue
	}
	direction := aggregation.RankDirection(r.URL.Query().Get("direction"))
	if direction == "" {
		direction = aggregation.RankTop
	}
	limit := defaultRankLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	entries, err := h.service.Rank(r.Context(), req, metric, direction, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"metric":    metric,
		"direction": direction,
		"entries":   entries,
	})
}

func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (aggregation.Request, bool) {
	claims := shared.ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "not signed in")
		return aggregation.Request{}, false
	}

	query := r.URL.Query()
	year, err := strconv.Atoi(query.Get("year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "year must be an integer")
		return aggregation.Request{}, false
	}
	month, err := strconv.Atoi(query.Get("month"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "month must be an integer")
		return aggregation.Request{}, false
	}
	mode := aggregation.Mode(query.Get("mode"))
	if mode == "" {
		mode = aggregation.ModeMonth
	}

	req := aggregation.Request{
		Year:    year,
		Month:   month,
		Mode:    mode,
		ActorID: claims.ActorID,
	}
	if raw := query.Get("cluster_id"); raw != "" {
		clusterID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "cluster_id must be an integer")
			return aggregation.Request{}, false
		}
		req.ClusterID = &clusterID
	}
	return req, true
}
