// Package jobs defines sync jobs and the queue and store contracts that run them.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/budget-sync/internal/banksync"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the sync run finished, possibly with recorded errors.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the sync run was aborted.
	JobStatusFailed JobStatus = "failed"
)

// Triggers recorded on a job.
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
)

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("jobs: job not found")

	// ErrQueueClosed is returned when publishing to a stopped queue.
	ErrQueueClosed = errors.New("jobs: queue is closed")

	// ErrQueueFull is returned when too many sync runs are already waiting.
	ErrQueueFull = errors.New("jobs: queue is full")
)

// SyncJob is one requested sync run.
type SyncJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Trigger records what requested the run.
	Trigger string `json:"trigger"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error is the abort reason of a failed job.
	Error string `json:"error,omitempty"`

	// Result is the run summary, set once the run returns.
	Result *banksync.SyncResult `json:"result,omitempty"`

	// ReportLocation is where the run report was archived, if anywhere.
	ReportLocation string `json:"report_location,omitempty"`
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishSync enqueues a sync job.
	PublishSync(ctx context.Context, job *SyncJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for the in-flight job to complete.
	Stop(ctx context.Context) error
}

// JobHandler runs a job. It may set Result and ReportLocation on the job.
// A returned error marks the job failed; failed jobs are not retried.
type JobHandler func(ctx context.Context, job *SyncJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *SyncJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*SyncJob, error)

	// ListJobs retrieves jobs newest first with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
