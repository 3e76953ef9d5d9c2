package scheduler

import (
	"context"
	"testing"

	"github.com/fjacquet/mediagen/internal/queue"
	"github.com/fjacquet/mediagen/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueCleanup(t *testing.T) {
	broker := &testutil.Broker{}
	s, err := New(broker)
	require.NoError(t, err)

	s.enqueueCleanup()

	require.Len(t, broker.Enqueued, 1)
	task := broker.Enqueued[0]
	assert.Equal(t, queue.TaskCleanupOldJobs, task.Task)
	assert.NotEmpty(t, task.ID)
}

func TestStartStop(t *testing.T) {
	s, err := New(&testutil.Broker{})
	require.NoError(t, err)

	s.Start()
	s.Stop(context.Background())
}
