package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/flowrunner/internal/api/middleware"
	"github.com/dvloznov/flowrunner/internal/jobs"
	"github.com/dvloznov/flowrunner/internal/telegram"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const maxUpdateBytes = 1 << 20

// WebhookHandler accepts bot updates and queues one ingestion per update.
type WebhookHandler struct {
	publisher jobs.Publisher
	seen      *cache.Cache
	ttl       time.Duration
	log       zerolog.Logger
}

// NewWebhookHandler creates a webhook handler. Update ids seen within
// dedupeTTL are acknowledged without queueing a second job.
func NewWebhookHandler(publisher jobs.Publisher, dedupeTTL time.Duration, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		publisher: publisher,
		seen:      cache.New(dedupeTTL, 2*dedupeTTL),
		ttl:       dedupeTTL,
		log:       log,
	}
}

// HandleTelegram handles POST /webhooks/telegram
func (h *WebhookHandler) HandleTelegram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var update telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid update body")
		return
	}

	ref, ok := telegram.ExtractFileReference(&update)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Update carries no receipt document or photo")
		return
	}

	job := &jobs.IngestReceiptJob{
		UpdateID: update.UpdateID,
		File:     ref,
		Caption:  telegram.Caption(&update),
		Context:  telegram.BuildContext(&update),
	}

	var dedupeKey string
	if update.UpdateID != 0 {
		dedupeKey = strconv.FormatInt(update.UpdateID, 10)
		if existing, found := h.seen.Get(dedupeKey); found {
			h.log.Info().Int64("update_id", update.UpdateID).Msg("Duplicate update ignored")
			body := map[string]string{"status": "duplicate"}
			// Empty while the first delivery is still being published.
			if jobID, _ := existing.(string); jobID != "" {
				body["job_id"] = jobID
			}
			middleware.WriteJSON(w, http.StatusAccepted, body)
			return
		}
		// Reserve the id before publishing so concurrent redeliveries see it.
		if err := h.seen.Add(dedupeKey, "", h.ttl); err != nil {
			middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "duplicate"})
			return
		}
	}

	if err := h.publisher.PublishIngestReceipt(ctx, job); err != nil {
		if dedupeKey != "" {
			h.seen.Delete(dedupeKey)
		}
		h.log.Error().Err(err).Str("file_id", ref.FileID).Msg("Failed to enqueue receipt")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue receipt")
		return
	}
	if dedupeKey != "" {
		h.seen.Set(dedupeKey, job.JobID, h.ttl)
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("file_id", ref.FileID).
		Int64("update_id", update.UpdateID).
		Msg("Receipt queued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"job_id": job.JobID,
	})
}
