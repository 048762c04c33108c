package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ecclesia-app/ecclesia-access/internal/audit"
	"github.com/ecclesia-app/ecclesia-access/internal/catalog"
	"github.com/ecclesia-app/ecclesia-access/internal/members"
	"github.com/ecclesia-app/ecclesia-access/internal/policy"
	"github.com/ecclesia-app/ecclesia-access/internal/profiles"
	"github.com/ecclesia-app/ecclesia-access/internal/rules"
	"github.com/ecclesia-app/ecclesia-access/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Authenticate    func(http.Handler) http.Handler
	CatalogHandler  *catalog.Handler
	ProfilesHandler *profiles.Handler
	MembersHandler  *members.Handler
	RulesHandler    *rules.Handler
	PolicyHandler   *policy.Handler
	AuditHandler    *audit.Handler
	JobsHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router for the governance API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.Authenticate != nil {
			r.Use(params.Authenticate)
		}
		r.Route("/permissions", params.CatalogHandler.MountRoutes)
		r.Route("/profiles", params.ProfilesHandler.MountRoutes)
		r.Route("/members", func(r chi.Router) {
			params.MembersHandler.MountRoutes(r)
			params.PolicyHandler.MountMemberRoutes(r)
		})
		r.Route("/rules", params.RulesHandler.MountRoutes)
		params.PolicyHandler.MountRoutes(r)
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
