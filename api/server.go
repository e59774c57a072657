/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer connecting URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

SECURITY NOTE:
  No authentication middleware. The identity collaborator is consumed
  upstream; all endpoints here trust the caller-supplied ids.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Catalog routes
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/packages", h.ListPackages)
			r.Get("/features", h.ListFeatures)
		})

		// Account routes
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/balance", h.GetBalance)
			r.Get("/purchases", h.GetPurchases)
			r.Get("/features", h.GetFeatureStatuses)
			r.Post("/features/{featureId}/unlock", h.UnlockFeature)
			r.Post("/features/{featureId}/toggle", h.ToggleFeature)
		})

		// Purchase routes
		r.Post("/purchases", h.SubmitPurchase)

		// Leaderboard routes
		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/", h.GetLeaderboard)
			r.Post("/ingest", h.IngestSnapshot)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/recompute", h.RecomputeRanks)
			r.Post("/prune", h.PruneInactive)
			r.Post("/sync", h.TriggerSync)
		})
	})

	return r
}
