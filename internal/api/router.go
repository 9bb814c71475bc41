package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/reset-core/internal/metrics"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Runtime and registry statistics (no auth required for basic monitoring)
		r.Get("/system", s.handleSystem)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Put("/domain", s.handleSetDomain)

			r.Route("/audio", func(r chi.Router) {
				r.Get("/", s.handleGetSnapshot)
				r.Post("/commands", s.handleDispatchCommand)
				r.Post("/resync", s.handleResync)
				r.Get("/journal", s.handleListJournal)
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.audio.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          s.version,
		"domain":           s.domains.Current(),
		"stale":            snap.Stale,
		"snapshot_version": snap.Version,
		"ws_clients":       s.hub.ClientCount(),
	})
}
