package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
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

	// Wire-compatible management surface. Fleet tooling built against the
	// previous gateway hits these paths directly.
	r.Get("/list", s.handleList)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/{imei}/unlock", s.handleUnlock)
	r.Post("/{imei}/position", s.handlePosition)

	r.Route("/devices", func(r chi.Router) {
		r.Get("/{imei}", s.handleGetDevice)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
