// Package api assembles the HTTP front door.
package api

import (
	"net/http"

	"github.com/dvloznov/flowrunner/internal/api/handlers"
	"github.com/dvloznov/flowrunner/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Webhook  *handlers.WebhookHandler
	Receipts *handlers.ReceiptsHandler
	Run      *handlers.RunHandler
	Jobs     *handlers.JobsHandler
}

// NewRouter mounts every endpoint behind the recovery, request id, logging
// and CORS middleware.
func NewRouter(h Handlers, log zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/healthz", handlers.Health)

	r.Post("/webhooks/telegram", h.Webhook.HandleTelegram)
	r.Get("/receipts", h.Receipts.ListReceipts)
	r.Post("/workflows/receipts/run", h.Run.RunReceipt)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", h.Jobs.ListJobs)
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			h.Jobs.GetJob(w, req, chi.URLParam(req, "id"))
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
