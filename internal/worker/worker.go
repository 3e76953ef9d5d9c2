// Package worker consumes generation tasks from the broker and drives each
// job through the pipeline: provider call, artifact download, metadata
// extraction, storage upload and state transition. Completion and
// cancellation race through guarded updates; the loser of the race backs
// off without side effects on the job row.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjacquet/mediagen/internal/logging"
	"github.com/fjacquet/mediagen/internal/metrics"
	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/provider"
	"github.com/fjacquet/mediagen/internal/queue"
	"github.com/fjacquet/mediagen/internal/service"
	"github.com/fjacquet/mediagen/internal/storage"
	"github.com/fjacquet/mediagen/internal/telemetry"
	"github.com/fjacquet/mediagen/internal/utils"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// hardTimeoutMargin extends the provider timeout for the surrounding
	// pipeline work (download, upload, persistence).
	hardTimeoutMargin = 60 * time.Second

	// cleanupMaxAge is the retention window for terminal jobs removed by
	// the periodic cleanup task, measured from completion.
	cleanupMaxAge = 30 * 24 * time.Hour

	brokerMaintenanceInterval = 5 * time.Second
	metricsInterval           = 15 * time.Second

	storageKeyPrefix = "generated/"
)

// Broker is the queue surface the worker consumes from.
type Broker interface {
	Dequeue(ctx context.Context, queueName string) (*queue.Task, error)
	Ack(ctx context.Context, queueName string, task *queue.Task) error
	Depth(ctx context.Context, queueName string) (int64, error)
	RunMaintenance(ctx context.Context, interval time.Duration, queues ...string)
}

// Worker processes generation and maintenance tasks.
type Worker struct {
	jobs     *service.JobService
	media    service.MediaStore
	backend  storage.Backend
	provider provider.Client
	broker   Broker
	cfg      models.Config

	downloader *downloader
	notifier   *notifier
	tracing    *telemetry.TracerWrapper
}

// Option configures optional worker settings.
type Option func(*Worker)

// WithTracerProvider sets the TracerProvider for pipeline spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(w *Worker) {
		w.tracing = telemetry.NewTracerWrapper(tp, "mediagen/worker")
	}
}

// New creates a worker.
func New(jobs *service.JobService, media service.MediaStore, backend storage.Backend,
	providerClient provider.Client, broker Broker, cfg models.Config, opts ...Option) *Worker {
	w := &Worker{
		jobs:       jobs,
		media:      media,
		backend:    backend,
		provider:   providerClient,
		broker:     broker,
		cfg:        cfg,
		downloader: newDownloader(),
		notifier:   newNotifier(),
		tracing:    telemetry.NewTracerWrapper(nil, "mediagen/worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes both queues until the context is cancelled. It also runs the
// broker maintenance loop (delayed task promotion, lease reaping) and the
// periodic metrics collection.
func (w *Worker) Run(ctx context.Context) {
	log.WithFields(log.Fields{
		"queues": []string{queue.QueueMediaGeneration, queue.QueueMaintenance},
	}).Info("Worker starting")

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		w.consume(ctx, queue.QueueMediaGeneration)
	}()
	go func() {
		defer wg.Done()
		w.consume(ctx, queue.QueueMaintenance)
	}()
	go func() {
		defer wg.Done()
		w.broker.RunMaintenance(ctx, brokerMaintenanceInterval,
			queue.QueueMediaGeneration, queue.QueueMaintenance)
	}()
	go func() {
		defer wg.Done()
		w.collectMetrics(ctx)
	}()

	wg.Wait()
	log.Info("Worker stopped")
}

// consume claims tasks from one queue. Acknowledgement happens after the
// handler returns, so a worker crash mid-task leads to redelivery.
func (w *Worker) consume(ctx context.Context, queueName string) {
	for ctx.Err() == nil {
		task, err := w.broker.Dequeue(ctx, queueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithFields(log.Fields{"queue": queueName, "error": err.Error()}).
				Error("Failed to claim task")
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		w.handleTask(ctx, queueName, task)

		if err := w.broker.Ack(ctx, queueName, task); err != nil {
			log.WithFields(log.Fields{"task_id": task.ID, "error": err.Error()}).
				Warn("Failed to acknowledge task")
		}
	}
}

func (w *Worker) handleTask(ctx context.Context, queueName string, task *queue.Task) {
	switch task.Task {
	case queue.TaskGenerateMedia:
		if len(task.Args) == 0 {
			log.WithField("task_id", task.ID).Error("Generation task without job id")
			return
		}
		hardTimeout := w.cfg.GetProviderTimeout() + hardTimeoutMargin
		taskCtx, cancel := context.WithTimeout(ctx, hardTimeout)
		w.Process(taskCtx, task.Args[0])
		cancel()
	case queue.TaskCleanupOldJobs:
		if _, err := w.jobs.CleanupOld(ctx, cleanupMaxAge); err != nil {
			log.WithField("error", err.Error()).Error("Cleanup task failed")
		}
	default:
		log.WithFields(log.Fields{"task": task.Task, "queue": queueName}).
			Warn("Dropping unknown task")
	}
}

// Process drives one generation job through the pipeline. Errors terminate
// in the job row, not in the return path: the task is always consumed.
func (w *Worker) Process(ctx context.Context, rawJobID string) {
	jobID, err := uuid.Parse(rawJobID)
	if err != nil {
		log.WithField("job_id", rawJobID).Error("Dropping task with malformed job id")
		return
	}

	ctx, span := w.tracing.StartSpan(ctx, "worker.process", trace.SpanKindConsumer)
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrJobID, jobID.String()))

	jobLog := logging.WithJob(jobID.String())

	job, err := w.jobs.Get(ctx, jobID)
	if errors.Is(err, service.ErrNotFound) {
		jobLog.Warn("Dropping task for unknown job")
		return
	}
	if err != nil {
		jobLog.WithField("error", err.Error()).Error("Failed to load job")
		return
	}
	if job.IsTerminal() {
		jobLog.WithField("status", job.Status).
			Info("Skipping job already in terminal state")
		return
	}

	job, applied, err := w.jobs.MarkProcessing(ctx, jobID)
	if err != nil {
		jobLog.WithField("error", err.Error()).Error("Failed to mark job processing")
		return
	}
	if !applied {
		jobLog.WithField("status", job.Status).
			Info("Skipping job that moved on before processing")
		return
	}

	jobLog.WithField("retry_count", job.RetryCount).Info("Processing job")

	start := time.Now()
	urls, err := w.provider.Generate(ctx, job.Prompt, job.Parameters)
	metrics.ProviderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderCalls.WithLabelValues("failure").Inc()
		w.tracing.RecordError(span, err)
		w.failJob(ctx, job, err)
		return
	}
	metrics.ProviderCalls.WithLabelValues("success").Inc()

	if len(urls) == 0 {
		w.failJob(ctx, job, fmt.Errorf("%w: provider returned no output", provider.ErrProviderFailure))
		return
	}

	media, err := w.storeArtifact(ctx, job, urls[0])
	if err != nil {
		w.tracing.RecordError(span, err)
		w.failJob(ctx, job, err)
		return
	}

	job, applied, err = w.jobs.MarkCompleted(ctx, jobID, media.ID)
	if err != nil {
		jobLog.WithField("error", err.Error()).Error("Failed to mark job completed")
		return
	}
	if !applied {
		// Cancelled while generating. The artifact row stays; the job keeps
		// its cancelled state and the client gets no success webhook.
		jobLog.WithField("status", job.Status).
			Info("Job was cancelled during processing, discarding completion")
		return
	}

	metrics.JobsCompleted.Inc()
	if d := job.DurationSeconds(); d != nil {
		metrics.JobDuration.Observe(*d)
	}
	span.SetAttributes(attribute.String(telemetry.AttrJobStatus, string(job.Status)))

	jobLog.WithField("media_id", media.ID).Info("Job completed")

	w.notifier.notifyCompleted(ctx, job, media)
}

// storeArtifact downloads the provider output, uploads it to the storage
// backend and persists the artifact metadata.
func (w *Worker) storeArtifact(ctx context.Context, job *models.Job, outputURL string) (*models.Media, error) {
	content, mime, err := w.downloader.fetch(ctx, outputURL)
	if err != nil {
		return nil, err
	}
	if mime == "" {
		mime = "image/png"
	}

	ext := extensionForMime(mime)
	key := storageKeyPrefix + job.ID.String() + ext

	result, err := w.backend.Upload(ctx, content, key, mime, w.cfg.Storage.S3Bucket)
	if err != nil {
		return nil, err
	}

	width, height := imageDimensions(content)
	size := int64(len(content))
	modelName, modelVersion := w.cfg.SplitModel()

	media := &models.Media{
		ID:                  uuid.New(),
		Type:                models.MediaType(mediaTypeForMime(mime)),
		StoragePath:         result.StoragePath,
		StorageURL:          optionalString(result.PublicURL),
		FileSizeBytes:       &size,
		MimeType:            &mime,
		FileExtension:       &ext,
		Width:               width,
		Height:              height,
		GenerationModelName: &modelName,
		GenerationParams:    job.Parameters,
		StorageProvider:     w.backend.Provider(),
		ETag:                optionalString(result.ETag),
	}
	if modelVersion != "" {
		media.GenerationModelVersion = &modelVersion
	}
	if w.cfg.Storage.Backend == models.StorageS3 {
		media.BucketName = &w.cfg.Storage.S3Bucket
	}

	if err := w.media.Insert(ctx, media); err != nil {
		return nil, fmt.Errorf("persisting artifact metadata: %w", err)
	}

	log.WithFields(log.Fields{
		"job_id":       job.ID,
		"media_id":     media.ID,
		"storage_path": media.StoragePath,
		"bytes":        size,
	}).Info("Stored artifact")
	return media, nil
}

// failJob records the failure and either schedules a retry or finalizes the
// job. Non-retryable failures and exhausted budgets produce a failure
// webhook; scheduled retries stay silent.
func (w *Worker) failJob(ctx context.Context, job *models.Job, cause error) {
	errType, retryable := classifyError(cause)

	// The task context is often already past its hard timeout by the time a
	// failure is recorded. The terminal write, the retry enqueue and the
	// webhook run detached so the job cannot wedge in processing.
	ctx = context.WithoutCancel(ctx)

	failed, applied, err := w.jobs.MarkFailed(ctx, job.ID, cause.Error(), models.JSONMap{
		"error_type": errType,
	})
	if err != nil {
		log.WithFields(log.Fields{"job_id": job.ID, "error": err.Error()}).
			Error("Failed to mark job failed")
		return
	}
	if !applied {
		log.WithFields(log.Fields{"job_id": job.ID, "status": failed.Status}).
			Info("Job moved on before failure could be recorded")
		return
	}

	log.WithFields(log.Fields{
		"job_id":     job.ID,
		"error_type": errType,
		"retryable":  retryable,
		"error":      cause.Error(),
	}).Warn("Job attempt failed")

	if retryable && failed.CanRetry() {
		delay := utils.BackoffWithJitter(w.cfg.Retry.BackoffBase, failed.RetryCount, w.cfg.Retry.BackoffMax)
		if _, scheduled, err := w.jobs.ScheduleRetry(ctx, job.ID, delay); err == nil && scheduled {
			metrics.JobsRetried.Inc()
			return
		} else if err != nil {
			log.WithFields(log.Fields{"job_id": job.ID, "error": err.Error()}).
				Error("Failed to schedule retry")
		}
	}

	metrics.JobsFailed.Inc()
	if d := failed.DurationSeconds(); d != nil {
		metrics.JobDuration.Observe(*d)
	}
	w.notifier.notifyFailed(ctx, failed)
}

// classifyError maps a pipeline failure to an error type label and its
// retryability.
func classifyError(err error) (string, bool) {
	switch {
	case errors.Is(err, provider.ErrConfigMissing):
		return "configuration_error", false
	case errors.Is(err, provider.ErrProviderFailure):
		return "provider_error", true
	case errors.Is(err, ErrDownloadTimeout):
		return "download_timeout", true
	case errors.Is(err, ErrNetworkUnreachable):
		return "network_unreachable", true
	case errors.Is(err, ErrHTTPStatus):
		return "http_status_error", true
	case errors.Is(err, ErrDecodeFailed):
		return "decode_failed", false
	case errors.Is(err, storage.ErrUnavailable):
		return "storage_unavailable", true
	case errors.Is(err, storage.ErrIO):
		return "storage_error", true
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", true
	default:
		return "internal_error", true
	}
}

// collectMetrics refreshes the queue depth and per-status job gauges.
func (w *Worker) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range []string{queue.QueueMediaGeneration, queue.QueueMaintenance} {
				if depth, err := w.broker.Depth(ctx, q); err == nil {
					metrics.QueueDepth.WithLabelValues(q).Set(float64(depth))
				}
			}
			if counts, err := w.jobs.CountByStatus(ctx); err == nil {
				for _, s := range []models.JobStatus{
					models.JobStatusPending, models.JobStatusProcessing,
					models.JobStatusCompleted, models.JobStatusFailed,
					models.JobStatusCancelled, models.JobStatusRetrying,
				} {
					metrics.JobsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
				}
			}
		}
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
