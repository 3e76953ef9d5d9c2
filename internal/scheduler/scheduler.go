// Package scheduler enqueues periodic maintenance tasks on the broker. It
// runs alongside the API server; workers execute whatever it schedules.
package scheduler

import (
	"context"
	"time"

	"github.com/fjacquet/mediagen/internal/queue"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// cleanupSchedule fires the old-job cleanup at the top of every hour.
const cleanupSchedule = "0 * * * *"

// Broker is the queue surface the scheduler publishes to.
type Broker interface {
	Enqueue(ctx context.Context, queueName string, task queue.Task) error
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron   *cron.Cron
	broker Broker
}

// New creates a scheduler publishing to the given broker.
func New(broker Broker) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		broker: broker,
	}

	if _, err := s.cron.AddFunc(cleanupSchedule, s.enqueueCleanup); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithField("schedule", cleanupSchedule).Info("Scheduler started")
}

// Stop halts the runner and waits for in-flight submissions to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	log.Info("Scheduler stopped")
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task := queue.Task{
		ID:   uuid.New().String(),
		Task: queue.TaskCleanupOldJobs,
	}
	if err := s.broker.Enqueue(ctx, queue.QueueMaintenance, task); err != nil {
		log.WithField("error", err.Error()).Error("Failed to enqueue cleanup task")
		return
	}
	log.WithField("task_id", task.ID).Debug("Enqueued cleanup task")
}
