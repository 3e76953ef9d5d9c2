package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const mediaColumns = `id, media_type, storage_path, storage_url, file_size_bytes,
	mime_type, file_extension, width, height, duration_seconds,
	generation_model_name, generation_model_version, generation_params,
	storage_provider, bucket_name, etag, extra_metadata, created_at, expires_at`

// MediaRepository persists artifact metadata. Rows are immutable after
// insert; the only mutation is deletion.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository creates a media repository backed by db.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Insert stores the artifact metadata.
func (r *MediaRepository) Insert(ctx context.Context, media *models.Media) error {
	media.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media (id, media_type, storage_path, storage_url, file_size_bytes,
			mime_type, file_extension, width, height, duration_seconds,
			generation_model_name, generation_model_version, generation_params,
			storage_provider, bucket_name, etag, extra_metadata, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		media.ID, media.Type, media.StoragePath, media.StorageURL, media.FileSizeBytes,
		media.MimeType, media.FileExtension, media.Width, media.Height, media.DurationSeconds,
		media.GenerationModelName, media.GenerationModelVersion, media.GenerationParams,
		media.StorageProvider, media.BucketName, media.ETag, media.ExtraMetadata,
		media.CreatedAt, media.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting media: %w", err)
	}
	return nil
}

// GetByID fetches a single artifact, or ErrNotFound.
func (r *MediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	var media models.Media
	err := r.db.GetContext(ctx, &media,
		`SELECT `+mediaColumns+` FROM media WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching media: %w", err)
	}
	return &media, nil
}

// Delete removes the artifact row after detaching any jobs that reference it.
// Returns ErrNotFound when the row does not exist.
func (r *MediaRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET media_id = NULL WHERE media_id = $1`, id); err != nil {
		return fmt.Errorf("detaching jobs: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting media: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}
