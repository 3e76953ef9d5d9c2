// Package repository provides PostgreSQL persistence for jobs and media
// artifacts. All status transitions are guarded conditional updates so that
// concurrent writers (API handlers cancelling, workers completing) cannot
// overwrite a terminal state.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("repository: not found")

const (
	connectTimeout = 10 * time.Second
	driverName     = "pgx"
)

// Connect opens a PostgreSQL pool with the configured sizing and verifies
// connectivity before returning.
func Connect(ctx context.Context, cfg models.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.PoolSize + cfg.Database.MaxOverflow)
	db.SetMaxIdleConns(cfg.Database.PoolSize)
	db.SetConnMaxLifetime(cfg.GetPoolRecycle())

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.WithFields(log.Fields{
		"max_open_conns": cfg.Database.PoolSize + cfg.Database.MaxOverflow,
		"max_idle_conns": cfg.Database.PoolSize,
	}).Info("Connected to database")

	return db, nil
}

// schema is applied at startup. Statements are idempotent so repeated boots
// against the same database are safe.
const schema = `
CREATE TABLE IF NOT EXISTS media (
    id                        UUID PRIMARY KEY,
    media_type                TEXT NOT NULL,
    storage_path              TEXT NOT NULL,
    storage_url               TEXT,
    file_size_bytes           BIGINT,
    mime_type                 TEXT,
    file_extension            TEXT,
    width                     INTEGER,
    height                    INTEGER,
    duration_seconds          DOUBLE PRECISION,
    generation_model_name     TEXT,
    generation_model_version  TEXT,
    generation_params         JSONB,
    storage_provider          TEXT NOT NULL,
    bucket_name               TEXT,
    etag                      TEXT,
    extra_metadata            JSONB,
    created_at                TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at                TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_media_storage_path ON media (storage_path);

CREATE TABLE IF NOT EXISTS jobs (
    id               UUID PRIMARY KEY,
    status           TEXT NOT NULL DEFAULT 'pending',
    prompt           TEXT NOT NULL,
    parameters       JSONB,
    retry_count      INTEGER NOT NULL DEFAULT 0,
    max_retries      INTEGER NOT NULL DEFAULT 3,
    error_message    TEXT,
    error_details    JSONB,
    task_id          TEXT,
    media_id         UUID REFERENCES media (id),
    client_ip        TEXT,
    user_agent       TEXT,
    request_metadata JSONB,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at       TIMESTAMPTZ,
    completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);
CREATE INDEX IF NOT EXISTS idx_jobs_prompt ON jobs (prompt);
CREATE INDEX IF NOT EXISTS idx_jobs_task_id ON jobs (task_id);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at);
`

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	log.Info("Database schema is up to date")
	return nil
}
