package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/queue"
	"github.com/fjacquet/mediagen/internal/repository"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// maxPromptLength bounds the prompt accepted at submission.
const maxPromptLength = 1000

// JobStore is the persistence surface the job service depends on.
type JobStore interface {
	Insert(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	SetTaskID(ctx context.Context, id uuid.UUID, taskID string) error
	MarkProcessing(ctx context.Context, id uuid.UUID) (*models.Job, bool, error)
	MarkCompleted(ctx context.Context, id, mediaID uuid.UUID) (*models.Job, bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, message string, details models.JSONMap) (*models.Job, bool, error)
	IncrementRetry(ctx context.Context, id uuid.UUID) (*models.Job, bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Job, bool, error)
	List(ctx context.Context, status models.JobStatus, page, perPage int) ([]models.Job, int, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// TaskQueue is the broker surface the job service depends on.
type TaskQueue interface {
	Enqueue(ctx context.Context, queueName string, task queue.Task) error
	EnqueueIn(ctx context.Context, queueName string, task queue.Task, delay time.Duration) error
	Revoke(ctx context.Context, taskID string) error
}

// CreateJobRequest carries a job submission.
type CreateJobRequest struct {
	Prompt     string         `json:"prompt"`
	Parameters models.JSONMap `json:"parameters"`
	WebhookURL string         `json:"webhook_url"`
	Metadata   models.JSONMap `json:"metadata"`
	ClientIP   string         `json:"-"`
	UserAgent  string         `json:"-"`
}

// JobService owns the job lifecycle.
type JobService struct {
	store  JobStore
	broker TaskQueue

	mu         sync.RWMutex
	maxRetries int
}

// NewJobService creates a job service.
func NewJobService(store JobStore, broker TaskQueue, cfg models.Config) *JobService {
	return &JobService{
		store:      store,
		broker:     broker,
		maxRetries: cfg.Retry.MaxRetries,
	}
}

// ApplyConfig applies the settings that are safe to change at runtime.
// New jobs pick up the updated retry budget; jobs already created keep the
// budget they were submitted with.
func (s *JobService) ApplyConfig(cfg models.Config) {
	s.mu.Lock()
	s.maxRetries = cfg.Retry.MaxRetries
	s.mu.Unlock()
}

func (s *JobService) retryBudget() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxRetries
}

// Create validates the submission, persists a pending job and enqueues the
// generation task. The task id equals the job id.
func (s *JobService) Create(ctx context.Context, req CreateJobRequest) (*models.Job, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, validationErr("prompt must not be empty")
	}
	if len(prompt) > maxPromptLength {
		return nil, validationErr("prompt exceeds %d characters", maxPromptLength)
	}
	if req.WebhookURL != "" {
		if err := validateWebhookURL(req.WebhookURL); err != nil {
			return nil, err
		}
	}

	job := &models.Job{
		ID:         uuid.New(),
		Status:     models.JobStatusPending,
		Prompt:     prompt,
		Parameters: req.Parameters,
		MaxRetries: s.retryBudget(),
	}
	if req.ClientIP != "" {
		job.ClientIP = &req.ClientIP
	}
	if req.UserAgent != "" {
		job.UserAgent = &req.UserAgent
	}
	if req.WebhookURL != "" || len(req.Metadata) > 0 {
		job.RequestMetadata = models.JSONMap{}
		if req.WebhookURL != "" {
			job.RequestMetadata["webhook_url"] = req.WebhookURL
		}
		if len(req.Metadata) > 0 {
			job.RequestMetadata["custom_metadata"] = map[string]interface{}(req.Metadata)
		}
	}

	if err := s.store.Insert(ctx, job); err != nil {
		return nil, err
	}

	taskID := job.ID.String()
	task := queue.Task{
		ID:   taskID,
		Task: queue.TaskGenerateMedia,
		Args: []string{taskID},
	}
	if err := s.broker.Enqueue(ctx, queue.QueueMediaGeneration, task); err != nil {
		// The row exists but no worker will ever pick it up; fail it so the
		// client is not left polling a job that cannot progress.
		msg := "failed to enqueue generation task"
		failed, applied, markErr := s.store.MarkFailed(ctx, job.ID, msg, models.JSONMap{
			"error_type": "queue_error",
		})
		if markErr != nil {
			log.WithFields(log.Fields{"job_id": job.ID, "error": markErr.Error()}).
				Error("Failed to mark unqueueable job as failed")
		} else if !applied {
			log.WithFields(log.Fields{"job_id": job.ID, "status": failed.Status}).
				Error("Unqueueable job was not failed, row already moved on")
		}
		return nil, err
	}

	if err := s.store.SetTaskID(ctx, job.ID, taskID); err != nil {
		log.WithFields(log.Fields{"job_id": job.ID, "error": err.Error()}).
			Warn("Failed to record task id")
	}
	job.TaskID = &taskID

	log.WithFields(log.Fields{"job_id": job.ID, "prompt_length": len(prompt)}).
		Info("Created generation job")
	return job, nil
}

// validateWebhookURL requires an absolute http(s) URL.
func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return validationErr("webhook_url is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validationErr("webhook_url must use http or https")
	}
	if u.Host == "" {
		return validationErr("webhook_url must be absolute")
	}
	return nil
}

// Get returns a job by id.
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return job, err
}

// List returns one page of jobs plus the total count for the filter. The
// status filter must be a known status or empty.
func (s *JobService) List(ctx context.Context, status models.JobStatus, page, perPage int) ([]models.Job, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, validationErr("unknown status %q", status)
	}
	if page < 1 {
		return nil, 0, validationErr("page must be >= 1")
	}
	if perPage < 1 || perPage > 100 {
		return nil, 0, validationErr("per_page must be between 1 and 100")
	}
	return s.store.List(ctx, status, page, perPage)
}

// Cancel moves a non-terminal job to cancelled and revokes its broker task
// best-effort. Cancelling a terminal job is an invalid-state error; the
// cancelled state itself is idempotent for callers that race each other.
func (s *JobService) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, applied, err := s.store.Cancel(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, invalidStateErr("job is already %s", job.Status)
	}

	if err := s.broker.Revoke(ctx, job.ID.String()); err != nil {
		log.WithFields(log.Fields{"job_id": job.ID, "error": err.Error()}).
			Warn("Failed to revoke broker task")
	}

	log.WithField("job_id", job.ID).Info("Cancelled job")
	return job, nil
}

// MarkProcessing transitions the job into processing. Returns false without
// error when the job has already reached a terminal state.
func (s *JobService) MarkProcessing(ctx context.Context, id uuid.UUID) (*models.Job, bool, error) {
	job, applied, err := s.store.MarkProcessing(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, ErrNotFound
	}
	return job, applied, err
}

// MarkCompleted links the artifact and finishes the job. A job cancelled
// while the worker was generating is left untouched and applied is false.
func (s *JobService) MarkCompleted(ctx context.Context, id, mediaID uuid.UUID) (*models.Job, bool, error) {
	job, applied, err := s.store.MarkCompleted(ctx, id, mediaID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, ErrNotFound
	}
	return job, applied, err
}

// MarkFailed records the failure. Applied is false when the job was
// cancelled in the meantime.
func (s *JobService) MarkFailed(ctx context.Context, id uuid.UUID, message string, details models.JSONMap) (*models.Job, bool, error) {
	job, applied, err := s.store.MarkFailed(ctx, id, message, details)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, ErrNotFound
	}
	return job, applied, err
}

// ScheduleRetry consumes one retry and re-enqueues the generation task after
// the backoff delay. Returns false when no retry budget is left or the job
// moved on.
func (s *JobService) ScheduleRetry(ctx context.Context, id uuid.UUID, delay time.Duration) (*models.Job, bool, error) {
	job, applied, err := s.store.IncrementRetry(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, ErrNotFound
	}
	if err != nil || !applied {
		return job, false, err
	}

	taskID := job.ID.String()
	task := queue.Task{
		ID:   taskID,
		Task: queue.TaskGenerateMedia,
		Args: []string{taskID},
	}
	if err := s.broker.EnqueueIn(ctx, queue.QueueMediaGeneration, task, delay); err != nil {
		return job, false, err
	}

	log.WithFields(log.Fields{
		"job_id":      job.ID,
		"retry_count": job.RetryCount,
		"delay":       delay.String(),
	}).Info("Scheduled retry")
	return job, true, nil
}

// CleanupOld deletes terminal jobs that finished more than maxAge ago.
func (s *JobService) CleanupOld(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	deleted, err := s.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.WithField("deleted", deleted).Info("Cleaned up old jobs")
	}
	return deleted, nil
}

// CountByStatus exposes per-status job counts for metrics collection.
func (s *JobService) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	return s.store.CountByStatus(ctx)
}
