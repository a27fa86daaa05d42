package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	aggregationhttp "github.com/meridian-fin/meridian-fin/internal/aggregation/http"
	"github.com/meridian-fin/meridian-fin/internal/auth"
	"github.com/meridian-fin/meridian-fin/internal/directory"
	"github.com/meridian-fin/meridian-fin/internal/facts"
	"github.com/meridian-fin/meridian-fin/internal/notify"
	"github.com/meridian-fin/meridian-fin/internal/observability"
	"github.com/meridian-fin/meridian-fin/internal/shared"
	workflowhttp "github.com/meridian-fin/meridian-fin/internal/workflow/http"
	"github.com/meridian-fin/meridian-fin/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager

	AuthHandler        *auth.Handler
	DirectoryHandler   *directory.Handler
	FactsHandler       *facts.Handler
	WorkflowHandler    *workflowhttp.Handler
	AggregationHandler *aggregationhttp.Handler
	NotifyHandler      *notify.Handler
	JobHandler         *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		if params.DirectoryHandler != nil {
			r.Route("/directory", params.DirectoryHandler.MountRoutes)
		}
		if params.FactsHandler != nil {
			r.Route("/facts", params.FactsHandler.MountRoutes)
		}
		if params.WorkflowHandler != nil {
			r.Route("/reports", params.WorkflowHandler.MountRoutes)
		}
		if params.AggregationHandler != nil {
			r.Route("/aggregation", params.AggregationHandler.MountRoutes)
		}
		if params.NotifyHandler != nil {
			r.Route("/notifications", params.NotifyHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
