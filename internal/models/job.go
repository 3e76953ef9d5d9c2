package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates the lifecycle states of a generation job.
//
// Transitions form a DAG: pending → processing → (completed | failed);
// failed → retrying → processing; any non-terminal state → cancelled.
// Terminal states never transition further.
type JobStatus string

// Job lifecycle states.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusRetrying   JobStatus = "retrying"
)

// Valid reports whether s is one of the defined job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled, JobStatusRetrying:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state (completed, failed or
// cancelled).
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job tracks a single media generation request from submission through its
// terminal state. Only the job service mutates a Job after creation.
type Job struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Status JobStatus `db:"status" json:"status"`
	Prompt string    `db:"prompt" json:"prompt"`

	// Parameters is the opaque generation payload forwarded to the provider
	// after model-specific cleaning.
	Parameters JSONMap `db:"parameters" json:"parameters"`

	RetryCount   int     `db:"retry_count" json:"retry_count"`
	MaxRetries   int     `db:"max_retries" json:"max_retries"`
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`
	ErrorDetails JSONMap `db:"error_details" json:"error_details,omitempty"`

	// TaskID is the broker task identifier, set once the queue accepts the job.
	TaskID *string `db:"task_id" json:"task_id,omitempty"`

	// MediaID references the generated artifact, set only on completion.
	MediaID *uuid.UUID `db:"media_id" json:"media_id,omitempty"`

	ClientIP        *string `db:"client_ip" json:"client_ip,omitempty"`
	UserAgent       *string `db:"user_agent" json:"user_agent,omitempty"`
	RequestMetadata JSONMap `db:"request_metadata" json:"request_metadata,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job reached a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status.Terminal()
}

// CanRetry reports whether the job is eligible for another attempt:
// it must have failed and still have retry budget left.
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// DurationSeconds returns the processing duration in seconds, or nil when the
// job has not both started and finished.
func (j *Job) DurationSeconds() *float64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return nil
	}
	d := j.CompletedAt.Sub(*j.StartedAt).Seconds()
	return &d
}

// WebhookURL extracts the webhook URL from the request metadata, or "" when
// none was supplied at submission.
func (j *Job) WebhookURL() string {
	return j.RequestMetadata.GetString("webhook_url")
}

// Progress derives a coarse progress percentage from the status:
// pending 0, processing/retrying 50, terminal 100.
func (j *Job) Progress() float64 {
	switch {
	case j.Status == JobStatusPending:
		return 0
	case j.IsTerminal():
		return 100
	default:
		return 50
	}
}
