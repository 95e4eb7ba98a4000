package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/flowrunner/internal/receipt"
)

// ErrJobNotFound is returned by a JobStore for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeIngestReceipt represents one receipt submission.
	JobTypeIngestReceipt JobType = "ingest_receipt"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// IngestReceiptJob carries one inbound receipt through the worker pool.
type IngestReceiptJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// UpdateID is the bot platform's delivery id, if any.
	UpdateID int64 `json:"update_id,omitempty"`

	File    receipt.FileReference `json:"file"`
	Caption string                `json:"caption,omitempty"`
	Context receipt.Context       `json:"context"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error and FailedStage describe a failed ingestion.
	Error       string `json:"error,omitempty"`
	FailedStage string `json:"failed_stage,omitempty"`

	// LedgerRowIndex is set once the receipt has been persisted.
	LedgerRowIndex int `json:"ledger_row_index,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *IngestReceiptJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *IngestReceiptJob) GetType() JobType {
	return JobTypeIngestReceipt
}

// GetStatus implements the Job interface.
func (j *IngestReceiptJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishIngestReceipt enqueues a receipt submission.
	PublishIngestReceipt(ctx context.Context, job *IngestReceiptJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the job failed; there
// are no retries. The handler may record results on the job itself.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *IngestReceiptJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*IngestReceiptJob, error)

	// ListJobs retrieves jobs with optional filtering, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestReceiptJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// FileID filters jobs by file reference.
	FileID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
