package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"referralstats/internal/api/http/handlers"
	"referralstats/internal/api/http/mw"
)

// BuildRouter wires the routes. Any middleware may be nil to disable it, except that
// ingest is mounted without jwtMW only when allowOpenIngest is set.
func BuildRouter(
	h *handlers.Handler,
	metricsHandler http.Handler,
	logMW *mw.LoggingMiddleware,
	rateLimitMW *mw.RateLimitMiddleware,
	jwtMW *mw.JWTMiddleware,
	allowOpenIngest bool,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}

	// tech endpoint not auth
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	if jwtMW == nil && !allowOpenIngest {
		return r
	}

	// ingest with jwt and rate limit
	r.Group(func(protected chi.Router) {
		if jwtMW != nil {
			protected.Use(jwtMW.Handler)
		}
		if rateLimitMW != nil {
			protected.Use(rateLimitMW.Handler)
		}

		protected.Post("/api/events", h.Ingest)
	})

	return r
}
