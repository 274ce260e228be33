package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Workflows
		r.Post("/workflows", h.StartWorkflow)
		r.Get("/workflows", h.ListWorkflows)
		r.Get("/workflows/{id}", h.GetWorkflow)
		r.Post("/workflows/{id}/pause", h.PauseWorkflow)
		r.Post("/workflows/{id}/resume", h.ResumeWorkflow)
		r.Post("/workflows/{id}/stop", h.StopWorkflow)
		r.Post("/workflows/{id}/escalation", h.ResolveEscalation)
		r.Get("/workflows/{id}/decisions", h.ListDecisions)

		// Observability
		r.Get("/performance", h.GetPerformance)
		r.Get("/messages/{recipient}", h.GetMessages)
	})
}
