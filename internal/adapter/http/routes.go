package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/Hivemind/internal/adapter/ws"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Work items
		r.Post("/workitems", h.CreateWorkItem)
		r.Get("/workitems", h.ListWorkItems)
		r.Get("/workitems/ready", h.ListReadyWorkItems)
		r.Get("/workitems/{id}", h.GetWorkItem)
		r.Post("/workitems/{id}/status", h.UpdateWorkItemStatus)
		r.Post("/workitems/{id}/cancel", h.CancelWorkItem)
		r.Post("/workitems/{id}/route", h.RouteWorkItem)
		r.Post("/workitems/{id}/decide", h.DecideWorkItem)
		r.Post("/workitems/{id}/force-decision", h.ForceDecision)
		r.Get("/workitems/{id}/decisions", h.GetDecisionHistory)
		r.Get("/workitems/{id}/audit", h.GetAuditTrail)

		// Participants
		r.Post("/participants", h.RegisterParticipant)
		r.Get("/participants", h.ListParticipants)
		r.Get("/participants/{id}", h.GetParticipant)
		r.Delete("/participants/{id}", h.DeregisterParticipant)

		// Planner ingestion
		r.Post("/plans", h.SubmitPlan)
	})
}
