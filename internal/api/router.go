package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the claim API. A nil limiter disables rate limiting.
func NewRouter(h *Handler, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.Get("/healthz", h.Health)

	r.Route("/v1", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Use(h.requireAuth)

		r.Post("/claims", h.Claim)
		r.Get("/audit", h.AuditLog)
		r.Get("/policy", h.GetPolicy)
		r.Put("/policy", h.PutPolicy)
		r.Get("/decisions/{decisionID}", h.Decision)
	})

	return r
}
