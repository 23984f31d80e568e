package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/Diego-II/expense-tracker-api/internal/email"
)

// ErrJobNotFound is returned by a JobStore for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to or consuming from a closed queue.
var ErrQueueClosed = errors.New("queue is closed")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcessEmail represents an email event processing job.
	JobTypeProcessEmail JobType = "process_email"
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
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries is used when a job does not set MaxRetries.
const DefaultMaxRetries = 3

// EmailEventJob carries one email event batch through the delivery layer.
type EmailEventJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Event is the batch of email notifications to process.
	Event email.Event `json:"event"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// MessageIDs returns the message IDs of the records in the job's event.
func (j *EmailEventJob) MessageIDs() []string {
	ids := make([]string, 0, len(j.Event.Records))
	for _, r := range j.Event.Records {
		ids = append(ids, r.MessageID)
	}
	return ids
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
func (j *EmailEventJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *EmailEventJob) GetType() JobType {
	return JobTypeProcessEmail
}

// GetStatus implements the Job interface.
func (j *EmailEventJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations (in-memory, AMQP).
type Publisher interface {
	// PublishEmailEvent publishes an email event processing job.
	PublishEmailEvent(ctx context.Context, job *EmailEventJob) error

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

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *EmailEventJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*EmailEventJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*EmailEventJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// MessageID filters jobs containing a record with this message ID.
	MessageID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// EmailEventHandler adapts an email event processor into a JobHandler.
func EmailEventHandler(process func(ctx context.Context, ev email.Event) error) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*EmailEventJob)
		if !ok {
			return errors.New("unsupported job type: " + string(job.GetType()))
		}
		return process(ctx, j.Event)
	}
}
