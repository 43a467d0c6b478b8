// Package api provides HTTP router setup.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/factchecker/citecheck/internal/cache"
	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/database"
	"github.com/factchecker/citecheck/internal/metrics"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg *config.Config, verifier Verifier, store database.Store, c *cache.Cache, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	handler := NewHandler(verifier, store, c)

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", handler.HealthCheck)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.Server.APIKeys))
			r.Use(AuditMiddleware(store))
			r.Use(RateLimitMiddleware(cfg.RateLimits.RequestsPerMinute))

			// Verification endpoints
			r.Post("/verify", handler.Verify)
			r.Post("/verify/stream", handler.VerifyStream)

			// Run history
			r.Get("/runs", handler.ListRuns)
			r.Get("/runs/{id}", handler.GetRun)

			// Result cache
			r.Get("/cache/stats", handler.CacheStats)
			r.Delete("/cache", handler.ClearCache)

			// Audit logs
			r.Get("/audit", handler.GetAuditLogs)
		})
	})

	return r
}
