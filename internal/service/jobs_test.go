package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/queue"
	"github.com/fjacquet/mediagen/internal/repository"
	"github.com/fjacquet/mediagen/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJobService() (*JobService, *testutil.JobStore, *testutil.Broker) {
	store := testutil.NewJobStore()
	broker := &testutil.Broker{}
	cfg := models.Config{}
	cfg.SetDefaults()
	return NewJobService(store, broker, cfg), store, broker
}

func TestCreateJob(t *testing.T) {
	svc, store, broker := newTestJobService()

	job, err := svc.Create(context.Background(), CreateJobRequest{
		Prompt:     "  a lighthouse at dusk  ",
		Parameters: models.JSONMap{"seed": 42},
		ClientIP:   "198.51.100.7",
		UserAgent:  "curl/8.0",
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "a lighthouse at dusk", job.Prompt, "prompt is trimmed")
	assert.Equal(t, 3, job.MaxRetries)
	require.NotNil(t, job.TaskID)
	assert.Equal(t, job.ID.String(), *job.TaskID, "task id equals job id")

	require.Len(t, broker.Enqueued, 1)
	assert.Equal(t, queue.TaskGenerateMedia, broker.Enqueued[0].Task)
	assert.Equal(t, []string{job.ID.String()}, broker.Enqueued[0].Args)

	stored, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
}

func TestCreateJobValidation(t *testing.T) {
	svc, _, broker := newTestJobService()
	ctx := context.Background()

	long := make([]byte, maxPromptLength+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name string
		req  CreateJobRequest
	}{
		{"empty prompt", CreateJobRequest{Prompt: ""}},
		{"whitespace prompt", CreateJobRequest{Prompt: "   "}},
		{"prompt too long", CreateJobRequest{Prompt: string(long)}},
		{"webhook bad scheme", CreateJobRequest{Prompt: "ok", WebhookURL: "ftp://example.com/hook"}},
		{"webhook relative", CreateJobRequest{Prompt: "ok", WebhookURL: "/hook"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, broker.Enqueued, "invalid submissions never reach the broker")
}

func TestCreateJobWebhookStored(t *testing.T) {
	svc, _, _ := newTestJobService()

	job, err := svc.Create(context.Background(), CreateJobRequest{
		Prompt:     "test",
		WebhookURL: "https://example.com/hook",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", job.WebhookURL())
}

func TestCreateJobCustomMetadataStored(t *testing.T) {
	svc, _, _ := newTestJobService()

	job, err := svc.Create(context.Background(), CreateJobRequest{
		Prompt:   "test",
		Metadata: models.JSONMap{"campaign": "spring"},
	})
	require.NoError(t, err)

	custom, ok := job.RequestMetadata["custom_metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "spring", custom["campaign"])
}

func TestCreateJobEnqueueFailureFailsJob(t *testing.T) {
	svc, store, broker := newTestJobService()
	broker.EnqueueErr = errors.New("broker down")

	_, err := svc.Create(context.Background(), CreateJobRequest{Prompt: "test"})
	require.Error(t, err)

	// The persisted job must not stay pending forever.
	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.JobStatusFailed])
	assert.Zero(t, counts[models.JobStatusPending])
}

func TestCancelPendingJob(t *testing.T) {
	svc, _, broker := newTestJobService()
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobRequest{Prompt: "test"})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)
	assert.Equal(t, []string{job.ID.String()}, broker.Revoked)
}

func TestCancelCompletedJobInvalidState(t *testing.T) {
	svc, store, _ := newTestJobService()
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobRequest{Prompt: "test"})
	require.NoError(t, err)
	_, _, err = store.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	_, _, err = store.MarkCompleted(ctx, job.ID, uuid.New())
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, job.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelMissingJob(t *testing.T) {
	svc, _, _ := newTestJobService()
	_, err := svc.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCompletionLosesRaceAgainstCancellation(t *testing.T) {
	svc, _, _ := newTestJobService()
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobRequest{Prompt: "test"})
	require.NoError(t, err)
	_, applied, err := svc.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, applied)

	_, err = svc.Cancel(ctx, job.ID)
	require.NoError(t, err)

	after, applied, err := svc.MarkCompleted(ctx, job.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, applied, "completion must not overwrite cancellation")
	assert.Equal(t, models.JobStatusCancelled, after.Status)
	assert.Nil(t, after.MediaID)
}

func TestScheduleRetry(t *testing.T) {
	svc, _, broker := newTestJobService()
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobRequest{Prompt: "test"})
	require.NoError(t, err)
	_, _, err = svc.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	_, _, err = svc.MarkFailed(ctx, job.ID, "provider error", nil)
	require.NoError(t, err)

	retried, applied, err := svc.ScheduleRetry(ctx, job.ID, 4*time.Second)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.JobStatusRetrying, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)

	require.Len(t, broker.Delayed, 1)
	assert.Equal(t, 4*time.Second, broker.Delays[0])
}

func TestScheduleRetryExhausted(t *testing.T) {
	svc, store, broker := newTestJobService()
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobRequest{Prompt: "test"})
	require.NoError(t, err)

	// Burn the whole retry budget.
	for i := 0; i < job.MaxRetries; i++ {
		_, _, err = svc.MarkProcessing(ctx, job.ID)
		require.NoError(t, err)
		_, _, err = svc.MarkFailed(ctx, job.ID, "provider error", nil)
		require.NoError(t, err)
		_, applied, err := svc.ScheduleRetry(ctx, job.ID, time.Second)
		require.NoError(t, err)
		require.True(t, applied)
	}

	_, _, err = svc.MarkProcessing(ctx, job.ID)
	require.NoError(t, err)
	_, _, err = svc.MarkFailed(ctx, job.ID, "provider error", nil)
	require.NoError(t, err)

	final, applied, err := svc.ScheduleRetry(ctx, job.ID, time.Second)
	require.NoError(t, err)
	assert.False(t, applied, "budget exhausted")
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Len(t, broker.Delayed, job.MaxRetries)

	stored, err := store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.MaxRetries, stored.RetryCount)
}

func TestListValidation(t *testing.T) {
	svc, _, _ := newTestJobService()
	ctx := context.Background()

	_, _, err := svc.List(ctx, "bogus", 1, 20)
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.List(ctx, "", 0, 20)
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = svc.List(ctx, "", 1, 101)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _, _ := newTestJobService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, CreateJobRequest{Prompt: "test"})
		require.NoError(t, err)
	}

	jobs, total, err := svc.List(ctx, models.JobStatusPending, 1, 2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, 5, total)

	jobs, total, err = svc.List(ctx, models.JobStatusCompleted, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Zero(t, total)
}

func TestCleanupOld(t *testing.T) {
	svc, store, _ := newTestJobService()
	ctx := context.Background()

	job, err := svc.Create(ctx, CreateJobRequest{Prompt: "test"})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, job.ID)
	require.NoError(t, err)

	// Fresh terminal job survives a 1h retention window.
	deleted, err := svc.CleanupOld(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	// With zero retention it is eligible.
	time.Sleep(5 * time.Millisecond)
	deleted, err = svc.CleanupOld(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetByID(ctx, job.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
