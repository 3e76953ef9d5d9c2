// Package testutil provides shared test doubles for the mediagen service.
//
// This package centralizes the in-memory fakes used across test files to
// reduce duplication and keep lifecycle semantics consistent with the real
// implementations.
//
// # Key Components
//
// JobStore: in-memory job persistence with the same guarded-transition
// semantics as the SQL repository (conditional updates that report whether
// they applied).
//
// MediaStore: in-memory artifact metadata persistence.
//
// Backend: in-memory storage backend keyed by storage path.
//
// Broker: task queue double that records enqueued, delayed and revoked
// tasks for assertions.
//
// # Design Pattern
//
// Each fake honors the exact contract of the interface it stands in for, so
// tests exercising races (cancellation vs. completion, retry budget
// exhaustion) observe the same outcomes as against the real stores.
package testutil

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/queue"
	"github.com/fjacquet/mediagen/internal/repository"
	"github.com/fjacquet/mediagen/internal/storage"
	"github.com/google/uuid"
)

// JobStore is an in-memory job store with guarded status transitions.
type JobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job

	// InsertErr, when set, is returned by Insert.
	InsertErr error
}

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*models.Job)}
}

// Seed places a job directly into the store, bypassing Insert.
func (f *JobStore) Seed(job *models.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
		job.UpdatedAt = job.CreatedAt
	}
	clone := *job
	f.jobs[job.ID] = &clone
}

func (f *JobStore) Insert(_ context.Context, job *models.Job) error {
	if f.InsertErr != nil {
		return f.InsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *JobStore) GetByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *JobStore) SetTaskID(_ context.Context, id uuid.UUID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		job.TaskID = &taskID
	}
	return nil
}

// transition refuses expired contexts the way a real database driver would.
func (f *JobStore) transition(ctx context.Context, id uuid.UUID, from []models.JobStatus, mutate func(*models.Job)) (*models.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	for _, s := range from {
		if job.Status == s {
			mutate(job)
			job.UpdatedAt = time.Now().UTC()
			clone := *job
			return &clone, true, nil
		}
	}
	clone := *job
	return &clone, false, nil
}

func (f *JobStore) MarkProcessing(ctx context.Context, id uuid.UUID) (*models.Job, bool, error) {
	return f.transition(ctx, id,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusRetrying},
		func(j *models.Job) {
			j.Status = models.JobStatusProcessing
			if j.StartedAt == nil {
				now := time.Now().UTC()
				j.StartedAt = &now
			}
		})
}

func (f *JobStore) MarkCompleted(ctx context.Context, id, mediaID uuid.UUID) (*models.Job, bool, error) {
	return f.transition(ctx, id,
		[]models.JobStatus{models.JobStatusProcessing},
		func(j *models.Job) {
			j.Status = models.JobStatusCompleted
			j.MediaID = &mediaID
			now := time.Now().UTC()
			j.CompletedAt = &now
		})
}

func (f *JobStore) MarkFailed(ctx context.Context, id uuid.UUID, message string, details models.JSONMap) (*models.Job, bool, error) {
	return f.transition(ctx, id,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusRetrying},
		func(j *models.Job) {
			j.Status = models.JobStatusFailed
			j.ErrorMessage = &message
			j.ErrorDetails = details
			now := time.Now().UTC()
			j.CompletedAt = &now
		})
}

func (f *JobStore) IncrementRetry(ctx context.Context, id uuid.UUID) (*models.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, false, repository.ErrNotFound
	}
	if job.Status != models.JobStatusFailed || job.RetryCount >= job.MaxRetries {
		clone := *job
		return &clone, false, nil
	}
	job.Status = models.JobStatusRetrying
	job.RetryCount++
	job.UpdatedAt = time.Now().UTC()
	clone := *job
	return &clone, true, nil
}

func (f *JobStore) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, bool, error) {
	return f.transition(ctx, id,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing,
			models.JobStatusRetrying, models.JobStatusFailed},
		func(j *models.Job) {
			j.Status = models.JobStatusCancelled
			now := time.Now().UTC()
			j.CompletedAt = &now
		})
}

func (f *JobStore) List(_ context.Context, status models.JobStatus, page, perPage int) ([]models.Job, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.Job
	for _, job := range f.jobs {
		if status == "" || job.Status == status {
			all = append(all, *job)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := (page - 1) * perPage
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (f *JobStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, job := range f.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(f.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *JobStore) CountByStatus(_ context.Context) (map[models.JobStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.JobStatus]int)
	for _, job := range f.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

// MediaStore is an in-memory artifact metadata store.
type MediaStore struct {
	mu    sync.Mutex
	media map[uuid.UUID]*models.Media
}

// NewMediaStore creates an empty media store.
func NewMediaStore() *MediaStore {
	return &MediaStore{media: make(map[uuid.UUID]*models.Media)}
}

func (f *MediaStore) Insert(_ context.Context, m *models.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	clone := *m
	f.media[m.ID] = &clone
	return nil
}

func (f *MediaStore) GetByID(_ context.Context, id uuid.UUID) (*models.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *m
	return &clone, nil
}

func (f *MediaStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.media[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.media, id)
	return nil
}

// All returns a snapshot of every stored artifact.
func (f *MediaStore) All() []models.Media {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Media, 0, len(f.media))
	for _, m := range f.media {
		out = append(out, *m)
	}
	return out
}

// Backend is an in-memory storage.Backend keyed by storage path.
type Backend struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Deleted records every path passed to Delete.
	Deleted []string

	// UploadErr, when set, is returned by Upload.
	UploadErr error

	// DeleteErr, when set, is returned by Delete.
	DeleteErr error
}

// NewBackend creates an empty storage backend.
func NewBackend() *Backend {
	return &Backend{objects: make(map[string][]byte)}
}

func (f *Backend) Upload(_ context.Context, content []byte, key, _, _ string) (*storage.UploadResult, error) {
	if f.UploadErr != nil {
		return nil, f.UploadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(content))
	copy(buf, content)
	f.objects[key] = buf
	return &storage.UploadResult{StoragePath: key}, nil
}

func (f *Backend) Download(_ context.Context, path, _ string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[path]
	if !ok {
		return nil, 0, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(content)), int64(len(content)), nil
}

func (f *Backend) Delete(_ context.Context, path, _ string) (bool, error) {
	if f.DeleteErr != nil {
		return false, f.DeleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, path)
	if _, ok := f.objects[path]; !ok {
		return false, nil
	}
	delete(f.objects, path)
	return true, nil
}

func (f *Backend) Exists(_ context.Context, path, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}

func (f *Backend) Provider() string { return "fake" }

// Object returns the stored bytes for a path, or nil.
func (f *Backend) Object(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[path]
}

// Broker is a task queue double recording every interaction.
type Broker struct {
	mu       sync.Mutex
	Enqueued []queue.Task
	Delayed  []queue.Task
	Delays   []time.Duration
	Revoked  []string

	// EnqueueErr, when set, is returned by Enqueue and EnqueueIn.
	EnqueueErr error
}

func (f *Broker) Enqueue(ctx context.Context, _ string, task queue.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.EnqueueErr != nil {
		return f.EnqueueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Enqueued = append(f.Enqueued, task)
	return nil
}

func (f *Broker) EnqueueIn(ctx context.Context, _ string, task queue.Task, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.EnqueueErr != nil {
		return f.EnqueueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Delayed = append(f.Delayed, task)
	f.Delays = append(f.Delays, delay)
	return nil
}

func (f *Broker) Revoke(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Revoked = append(f.Revoked, taskID)
	return nil
}
