package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-things/internal/protocol"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth required for basic monitoring)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/things", s.handleListThings)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/audit", s.handleListAudit)
		})
	})

	// Resource routes follow the path convention shared by every binding.
	r.Route("/things/{thing}", func(r chi.Router) {
		r.Get("/", s.resourceHandler(protocol.VerbRead, protocol.KindThing))
		r.With(s.authMiddleware).Delete("/", s.resourceHandler(protocol.VerbUnlink, protocol.KindThing))

		r.Route("/properties/{name}", func(r chi.Router) {
			r.Get("/", s.resourceHandler(protocol.VerbRead, protocol.KindProperty))
			r.Get("/history", s.handlePropertyHistory)
			r.With(s.authMiddleware).Put("/", s.resourceHandler(protocol.VerbWrite, protocol.KindProperty))
			r.With(s.authMiddleware).Delete("/", s.resourceHandler(protocol.VerbUnlink, protocol.KindProperty))
		})
		r.Route("/actions/{name}", func(r chi.Router) {
			r.With(s.authMiddleware).Post("/", s.resourceHandler(protocol.VerbInvoke, protocol.KindAction))
			r.With(s.authMiddleware).Delete("/", s.resourceHandler(protocol.VerbUnlink, protocol.KindAction))
		})
		r.Route("/events/{name}", func(r chi.Router) {
			r.Get("/history", s.handleEventHistory)
			r.With(s.authMiddleware).Post("/", s.resourceHandler(protocol.VerbInvoke, protocol.KindEvent))
			r.With(s.authMiddleware).Delete("/", s.resourceHandler(protocol.VerbUnlink, protocol.KindEvent))
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"things":  s.registry.Count(),
	})
}
