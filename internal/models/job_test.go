package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValid(t *testing.T) {
	for _, s := range []JobStatus{
		JobStatusPending, JobStatusProcessing, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled, JobStatusRetrying,
	} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, JobStatus("running").Valid())
	assert.False(t, JobStatus("").Valid())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.False(t, JobStatusRetrying.Terminal())
}

func TestJobCanRetry(t *testing.T) {
	job := Job{Status: JobStatusFailed, RetryCount: 2, MaxRetries: 3}
	assert.True(t, job.CanRetry())

	job.RetryCount = 3
	assert.False(t, job.CanRetry(), "budget exhausted")

	job.RetryCount = 0
	job.Status = JobStatusProcessing
	assert.False(t, job.CanRetry(), "only failed jobs retry")
}

func TestJobDurationSeconds(t *testing.T) {
	job := Job{}
	assert.Nil(t, job.DurationSeconds())

	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	job.StartedAt = &started
	assert.Nil(t, job.DurationSeconds(), "still running")

	job.CompletedAt = &finished
	d := job.DurationSeconds()
	require.NotNil(t, d)
	assert.Equal(t, 90.0, *d)
}

func TestJobProgress(t *testing.T) {
	assert.Equal(t, 0.0, (&Job{Status: JobStatusPending}).Progress())
	assert.Equal(t, 50.0, (&Job{Status: JobStatusProcessing}).Progress())
	assert.Equal(t, 50.0, (&Job{Status: JobStatusRetrying}).Progress())
	assert.Equal(t, 100.0, (&Job{Status: JobStatusCompleted}).Progress())
	assert.Equal(t, 100.0, (&Job{Status: JobStatusCancelled}).Progress())
}

func TestJobWebhookURL(t *testing.T) {
	job := Job{}
	assert.Empty(t, job.WebhookURL())

	job.RequestMetadata = JSONMap{"webhook_url": "https://example.com/hook"}
	assert.Equal(t, "https://example.com/hook", job.WebhookURL())
}
