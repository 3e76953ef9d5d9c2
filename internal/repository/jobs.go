package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// jobColumns is the canonical select list for job rows.
const jobColumns = `id, status, prompt, parameters, retry_count, max_retries,
	error_message, error_details, task_id, media_id, client_ip, user_agent,
	request_metadata, created_at, updated_at, started_at, completed_at`

// JobRepository persists jobs. Status transitions use guarded updates that
// name the expected pre-states in the WHERE clause; a transition that matches
// zero rows is reported as not applied together with the current row.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a job repository backed by db.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Insert stores a new job row. Timestamps are set here so the returned job
// matches what was written.
func (r *JobRepository) Insert(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, prompt, parameters, retry_count, max_retries,
			task_id, client_ip, user_agent, request_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.Status, job.Prompt, job.Parameters, job.RetryCount, job.MaxRetries,
		job.TaskID, job.ClientIP, job.UserAgent, job.RequestMetadata, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetByID fetches a single job, or ErrNotFound.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	err := r.db.GetContext(ctx, &job,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching job: %w", err)
	}
	return &job, nil
}

// SetTaskID records the broker task identifier after enqueue.
func (r *JobRepository) SetTaskID(ctx context.Context, id uuid.UUID, taskID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET task_id = $2, updated_at = $3 WHERE id = $1`,
		id, taskID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting task id: %w", err)
	}
	return nil
}

// transition applies a guarded status change. The update only matches when
// the row is currently in one of the expected states; otherwise the current
// row is re-read and returned with applied=false.
func (r *JobRepository) transition(ctx context.Context, id uuid.UUID, from []models.JobStatus, set string, args []interface{}) (*models.Job, bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = fmt.Sprintf("'%s'", s)
	}

	query := fmt.Sprintf(
		`UPDATE jobs SET %s WHERE id = $1 AND status IN (%s)`,
		set, strings.Join(states, ", "))

	res, err := r.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return nil, false, fmt.Errorf("updating job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("reading affected rows: %w", err)
	}

	job, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if affected == 0 {
		log.WithFields(log.Fields{
			"job_id": id,
			"status": job.Status,
		}).Debug("Status transition not applied, job already moved on")
		return job, false, nil
	}
	return job, true, nil
}

// MarkProcessing moves a pending or retrying job into processing and stamps
// started_at on the first attempt only.
func (r *JobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (*models.Job, bool, error) {
	now := time.Now().UTC()
	return r.transition(ctx, id,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusRetrying},
		`status = $2, started_at = COALESCE(started_at, $3), updated_at = $3`,
		[]interface{}{models.JobStatusProcessing, now})
}

// MarkCompleted moves a processing job to completed and links the artifact.
func (r *JobRepository) MarkCompleted(ctx context.Context, id, mediaID uuid.UUID) (*models.Job, bool, error) {
	now := time.Now().UTC()
	return r.transition(ctx, id,
		[]models.JobStatus{models.JobStatusProcessing},
		`status = $2, media_id = $3, completed_at = $4, updated_at = $4, error_message = NULL, error_details = NULL`,
		[]interface{}{models.JobStatusCompleted, mediaID, now})
}

// MarkFailed moves a non-terminal job to failed and records the error. The
// pre-state set includes pending so a job whose task never reached the
// broker can be failed without first claiming it.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string, details models.JSONMap) (*models.Job, bool, error) {
	now := time.Now().UTC()
	return r.transition(ctx, id,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusRetrying},
		`status = $2, error_message = $3, error_details = $4, completed_at = $5, updated_at = $5`,
		[]interface{}{models.JobStatusFailed, message, details, now})
}

// IncrementRetry atomically consumes one retry: the update only matches a
// failed job with budget left, so two concurrent callers cannot both claim
// the same attempt.
func (r *JobRepository) IncrementRetry(ctx context.Context, id uuid.UUID) (*models.Job, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $2, retry_count = retry_count + 1, updated_at = $3
		WHERE id = $1 AND status = 'failed' AND retry_count < max_retries`,
		id, models.JobStatusRetrying, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("incrementing retry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("reading affected rows: %w", err)
	}

	job, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, affected > 0, nil
}

// Cancel moves any non-terminal job to cancelled.
func (r *JobRepository) Cancel(ctx context.Context, id uuid.UUID) (*models.Job, bool, error) {
	now := time.Now().UTC()
	return r.transition(ctx, id,
		[]models.JobStatus{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusRetrying, models.JobStatusFailed},
		`status = $2, completed_at = $3, updated_at = $3`,
		[]interface{}{models.JobStatusCancelled, now})
}

// List returns one page of jobs ordered newest first, optionally filtered by
// status, together with the total count for the filter.
func (r *JobRepository) List(ctx context.Context, status models.JobStatus, page, perPage int) ([]models.Job, int, error) {
	offset := (page - 1) * perPage

	var (
		jobs  []models.Job
		total int
		err   error
	)
	if status != "" {
		err = r.db.SelectContext(ctx, &jobs,
			`SELECT `+jobColumns+` FROM jobs WHERE status = $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, perPage, offset)
		if err == nil {
			err = r.db.GetContext(ctx, &total,
				`SELECT COUNT(*) FROM jobs WHERE status = $1`, status)
		}
	} else {
		err = r.db.SelectContext(ctx, &jobs,
			`SELECT `+jobColumns+` FROM jobs
			 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			perPage, offset)
		if err == nil {
			err = r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM jobs`)
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, total, nil
}

// DeleteTerminalBefore removes terminal jobs that finished before the cutoff
// and returns how many were deleted. Every terminal job carries a
// completed_at stamp, so filtering on it covers failed and cancelled rows
// too. Artifacts referenced by deleted jobs are left in place.
func (r *JobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old jobs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return deleted, nil
}

// CountByStatus returns the number of jobs per status, used for the queue
// depth metrics.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) AS n FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var (
			status models.JobStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
