package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dvloznov/flowrunner/internal/api/middleware"
	"github.com/dvloznov/flowrunner/internal/jobs"
	"github.com/dvloznov/flowrunner/internal/ledger"
	"github.com/dvloznov/flowrunner/internal/pipeline"
	"github.com/dvloznov/flowrunner/internal/receipt"
	"github.com/rs/zerolog"
)

// LedgerReader reads every row of a ledger file.
type LedgerReader interface {
	Read(path string) ([]ledger.Record, error)
}

// ReceiptProcessor runs extraction and persistence on a local file.
type ReceiptProcessor interface {
	Process(ctx context.Context, filePath string, caption string, meta receipt.Context) (*receipt.IngestionResult, error)
}

// ReceiptsHandler serves the ledger contents.
type ReceiptsHandler struct {
	reader  LedgerReader
	csvPath string
	log     zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(reader LedgerReader, csvPath string, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{reader: reader, csvPath: csvPath, log: log}
}

// ListReceipts handles GET /receipts
func (h *ReceiptsHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reader.Read(h.csvPath)
	if err != nil {
		h.log.Error().Err(err).Str("csv_path", h.csvPath).Msg("Failed to read ledger")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read ledger")
		return
	}

	summary := ledger.Summarize(rows)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rows":   rows,
		"count":  summary.Count,
		"totals": summary.Totals,
	})
}

// DemoReceiptName is the scratch file the manual run endpoint feeds the
// extractor. It lives next to the ledger and is never removed.
const DemoReceiptName = "dummy-receipt.jpg"

// DemoCaption is the caption attached to manual runs.
const DemoCaption = "Demo via API"

// RunHandler triggers a synchronous ingestion without the bot platform.
type RunHandler struct {
	processor ReceiptProcessor
	csvPath   string
	log       zerolog.Logger
}

// NewRunHandler creates a new manual run handler.
func NewRunHandler(processor ReceiptProcessor, csvPath string, log zerolog.Logger) *RunHandler {
	return &RunHandler{processor: processor, csvPath: csvPath, log: log}
}

// RunReceipt handles POST /workflows/receipts/run
func (h *RunHandler) RunReceipt(w http.ResponseWriter, r *http.Request) {
	scratch := filepath.Join(filepath.Dir(h.csvPath), DemoReceiptName)
	if err := touch(scratch); err != nil {
		h.log.Error().Err(err).Str("path", scratch).Msg("Failed to prepare demo receipt")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to prepare demo receipt")
		return
	}

	result, err := h.processor.Process(r.Context(), scratch, DemoCaption, receipt.Context{})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, receipt.ErrExtractionTimeout) {
			status = http.StatusGatewayTimeout
		}
		middleware.WriteJSON(w, status, map[string]string{
			"error": err.Error(),
			"stage": string(pipeline.FailedStage(err)),
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

func touch(p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		FileID: query.Get("file_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /healthz
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
