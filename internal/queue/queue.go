// Package queue implements a Redis-backed task queue with at-least-once
// delivery. Pending tasks live in a list; a blocking move puts each claimed
// task on a processing list with a lease, and acknowledgement removes it.
// Tasks whose lease expires without acknowledgement are returned to the
// pending list for redelivery. Delayed tasks sit in a sorted set scored by
// their visibility time until promotion.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Queue names.
const (
	QueueMediaGeneration = "media_generation"
	QueueMaintenance     = "maintenance"
)

// Task names routed through the queues.
const (
	TaskGenerateMedia  = "generate_media"
	TaskCleanupOldJobs = "cleanup_old_jobs"
)

const (
	keyPrefix = "mediagen"

	// defaultLease bounds how long a claimed task may stay unacknowledged
	// before the reaper returns it to the pending list. It must exceed the
	// hard execution timeout so a live worker is never preempted.
	defaultLease = 400 * time.Second

	dequeueBlock = 5 * time.Second
)

// ErrClosed is returned from blocking operations after Close.
var ErrClosed = errors.New("queue: client closed")

// Task is the unit of work exchanged through the broker. ID doubles as the
// job identifier so revocation by job id needs no extra lookup.
type Task struct {
	ID         string    `json:"id"`
	Task       string    `json:"task"`
	Args       []string  `json:"args"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// raw is the exact payload claimed from Redis; acknowledgement must
	// remove that byte-identical entry from the processing list.
	raw string
}

// lease records a claimed task and when it must be acknowledged by.
type lease struct {
	Payload  string    `json:"payload"`
	Deadline time.Time `json:"deadline"`
}

// Client talks to the Redis broker.
type Client struct {
	rdb   *redis.Client
	lease time.Duration
}

// Option configures optional client settings.
type Option func(*Client)

// WithLease overrides the redelivery lease duration.
func WithLease(d time.Duration) Option {
	return func(c *Client) {
		c.lease = d
	}
}

// NewClient connects to the broker at the given URL
// (redis://host:port/db form).
func NewClient(brokerURL string, opts ...Option) (*Client, error) {
	redisOpts, err := redis.ParseURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing broker URL: %w", err)
	}

	c := &Client{
		rdb:   redis.NewClient(redisOpts),
		lease: defaultLease,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewClientFromRedis wraps an existing Redis connection. Used by tests.
func NewClientFromRedis(rdb *redis.Client, opts ...Option) *Client {
	c := &Client{rdb: rdb, lease: defaultLease}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping verifies broker connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func pendingKey(queue string) string {
	return fmt.Sprintf("%s:queue:%s", keyPrefix, queue)
}

func processingKey(queue string) string {
	return fmt.Sprintf("%s:processing:%s", keyPrefix, queue)
}

func leaseKey(queue string) string {
	return fmt.Sprintf("%s:leases:%s", keyPrefix, queue)
}

func delayedKey(queue string) string {
	return fmt.Sprintf("%s:delayed:%s", keyPrefix, queue)
}

func revokedKey() string {
	return fmt.Sprintf("%s:revoked", keyPrefix)
}

// Enqueue makes the task immediately visible on the named queue.
func (c *Client) Enqueue(ctx context.Context, queue string, task Task) error {
	task.EnqueuedAt = time.Now().UTC()
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}

	if err := c.rdb.LPush(ctx, pendingKey(queue), payload).Err(); err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}

	log.WithFields(log.Fields{"task_id": task.ID, "task": task.Task, "queue": queue}).
		Debug("Enqueued task")
	return nil
}

// EnqueueIn schedules the task to become visible after the delay. Used for
// retry backoff.
func (c *Client) EnqueueIn(ctx context.Context, queue string, task Task, delay time.Duration) error {
	if delay <= 0 {
		return c.Enqueue(ctx, queue, task)
	}

	task.EnqueuedAt = time.Now().UTC()
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}

	visibleAt := float64(time.Now().Add(delay).UnixMilli())
	err = c.rdb.ZAdd(ctx, delayedKey(queue), redis.Z{Score: visibleAt, Member: string(payload)}).Err()
	if err != nil {
		return fmt.Errorf("scheduling task: %w", err)
	}

	log.WithFields(log.Fields{"task_id": task.ID, "queue": queue, "delay": delay.String()}).
		Debug("Scheduled delayed task")
	return nil
}

// Dequeue claims the next task from the named queue, blocking up to the
// default block interval. It returns (nil, nil) when the queue stayed empty
// and the claimed task otherwise. Revoked tasks are consumed and discarded
// without being returned.
func (c *Client) Dequeue(ctx context.Context, queue string) (*Task, error) {
	for {
		payload, err := c.rdb.BLMove(ctx, pendingKey(queue), processingKey(queue),
			"RIGHT", "LEFT", dequeueBlock).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("claiming task: %w", err)
		}

		var task Task
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			// Drop undecodable payloads rather than redelivering them forever.
			log.WithField("error", err.Error()).Error("Dropping malformed task payload")
			c.removeClaimed(ctx, queue, payload, "")
			continue
		}
		task.raw = payload

		revoked, err := c.consumeRevocation(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			log.WithField("task_id", task.ID).Info("Discarding revoked task")
			c.removeClaimed(ctx, queue, payload, task.ID)
			continue
		}

		if err := c.recordLease(ctx, queue, &task); err != nil {
			return nil, err
		}
		return &task, nil
	}
}

// recordLease stores the claim deadline for the reaper.
func (c *Client) recordLease(ctx context.Context, queue string, task *Task) error {
	l := lease{
		Payload:  task.raw,
		Deadline: time.Now().UTC().Add(c.lease),
	}
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshaling lease: %w", err)
	}
	if err := c.rdb.HSet(ctx, leaseKey(queue), task.ID, data).Err(); err != nil {
		return fmt.Errorf("recording lease: %w", err)
	}
	return nil
}

// Ack acknowledges a claimed task, removing it from the processing list and
// releasing its lease. Safe to call more than once.
func (c *Client) Ack(ctx context.Context, queue string, task *Task) error {
	c.removeClaimed(ctx, queue, task.raw, task.ID)
	return nil
}

func (c *Client) removeClaimed(ctx context.Context, queue, payload, taskID string) {
	if payload != "" {
		if err := c.rdb.LRem(ctx, processingKey(queue), 1, payload).Err(); err != nil {
			log.WithField("error", err.Error()).Warn("Failed to remove claimed task")
		}
	}
	if taskID != "" {
		if err := c.rdb.HDel(ctx, leaseKey(queue), taskID).Err(); err != nil {
			log.WithField("error", err.Error()).Warn("Failed to release lease")
		}
	}
}

// Revoke marks the task for discard. A task already claimed by a worker is
// not interrupted; revocation takes effect at the next delivery.
func (c *Client) Revoke(ctx context.Context, taskID string) error {
	if err := c.rdb.SAdd(ctx, revokedKey(), taskID).Err(); err != nil {
		return fmt.Errorf("revoking task: %w", err)
	}
	return nil
}

// consumeRevocation checks and clears the revocation marker for taskID.
func (c *Client) consumeRevocation(ctx context.Context, taskID string) (bool, error) {
	removed, err := c.rdb.SRem(ctx, revokedKey(), taskID).Result()
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return removed > 0, nil
}

// PromoteDelayed moves tasks whose visibility time has arrived from the
// delayed set to the pending list. Returns how many became visible.
func (c *Client) PromoteDelayed(ctx context.Context, queue string) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	payloads, err := c.rdb.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("reading delayed tasks: %w", err)
	}

	promoted := 0
	for _, payload := range payloads {
		removed, err := c.rdb.ZRem(ctx, delayedKey(queue), payload).Result()
		if err != nil {
			return promoted, fmt.Errorf("removing delayed task: %w", err)
		}
		if removed == 0 {
			continue // another promoter won the race
		}
		if err := c.rdb.LPush(ctx, pendingKey(queue), payload).Err(); err != nil {
			return promoted, fmt.Errorf("promoting delayed task: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// ReapExpired returns tasks with an expired lease to the pending list so
// another worker can claim them. Returns how many were redelivered.
func (c *Client) ReapExpired(ctx context.Context, queue string) (int, error) {
	entries, err := c.rdb.HGetAll(ctx, leaseKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("reading leases: %w", err)
	}

	now := time.Now().UTC()
	reaped := 0
	for taskID, data := range entries {
		var l lease
		if err := json.Unmarshal([]byte(data), &l); err != nil {
			log.WithField("task_id", taskID).Error("Dropping malformed lease entry")
			_ = c.rdb.HDel(ctx, leaseKey(queue), taskID).Err()
			continue
		}
		if now.Before(l.Deadline) {
			continue
		}

		removed, err := c.rdb.HDel(ctx, leaseKey(queue), taskID).Result()
		if err != nil {
			return reaped, fmt.Errorf("releasing lease: %w", err)
		}
		if removed == 0 {
			continue // acknowledged concurrently
		}

		_ = c.rdb.LRem(ctx, processingKey(queue), 1, l.Payload).Err()
		if err := c.rdb.LPush(ctx, pendingKey(queue), l.Payload).Err(); err != nil {
			return reaped, fmt.Errorf("redelivering task: %w", err)
		}

		log.WithFields(log.Fields{"task_id": taskID, "queue": queue}).
			Warn("Redelivering task with expired lease")
		reaped++
	}
	return reaped, nil
}

// Depth returns the number of visible tasks waiting on the queue.
func (c *Client) Depth(ctx context.Context, queue string) (int64, error) {
	return c.rdb.LLen(ctx, pendingKey(queue)).Result()
}

// RunMaintenance periodically promotes due delayed tasks and reaps expired
// leases for the named queues until the context is cancelled.
func (c *Client) RunMaintenance(ctx context.Context, interval time.Duration, queues ...string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, queue := range queues {
				if _, err := c.PromoteDelayed(ctx, queue); err != nil && ctx.Err() == nil {
					log.WithField("error", err.Error()).Warn("Delayed task promotion failed")
				}
				if _, err := c.ReapExpired(ctx, queue); err != nil && ctx.Err() == nil {
					log.WithField("error", err.Error()).Warn("Lease reaping failed")
				}
			}
		}
	}
}
