package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/calctree/engine/internal/api/handlers"
	mw "github.com/calctree/engine/internal/api/middleware"
)

type Dependencies struct {
	Verifier            mw.TokenVerifier
	RateLimiter         *mw.RateLimiter
	AuthHandler         *handlers.AuthHandler
	CalculationsHandler *handlers.CalculationsHandler
	HealthHandler       *handlers.HealthHandler
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	if dep.RateLimiter != nil {
		r.Use(dep.RateLimiter.Middleware)
	}
	r.Use(chimid.Compress(5))

	hh := dep.HealthHandler
	if hh == nil {
		hh = handlers.NewHealthHandler(nil)
	}
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	if dep.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", dep.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", dep.AuthHandler.Register)
			ar.Post("/login", dep.AuthHandler.Login)
		})

		api.Route("/calculations", func(cr chi.Router) {
			// Reading the forest does not require an account.
			cr.Group(func(public chi.Router) {
				public.Use(mw.OptionalAuth(dep.Verifier))
				public.Get("/tree", dep.CalculationsHandler.Tree)
				public.Get("/{id}/lineage", dep.CalculationsHandler.Lineage)
			})

			cr.Group(func(protected chi.Router) {
				protected.Use(mw.Auth(dep.Verifier))
				protected.Post("/start", dep.CalculationsHandler.Start)
				protected.Post("/operation", dep.CalculationsHandler.Operation)
			})
		})
	})

	return r
}
