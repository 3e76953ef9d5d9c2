package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fjacquet/mediagen/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mediaColumnNames = []string{
	"id", "media_type", "storage_path", "storage_url", "file_size_bytes",
	"mime_type", "file_extension", "width", "height", "duration_seconds",
	"generation_model_name", "generation_model_version", "generation_params",
	"storage_provider", "bucket_name", "etag", "extra_metadata",
	"created_at", "expires_at",
}

func mediaRow(id uuid.UUID) *sqlmock.Rows {
	return sqlmock.NewRows(mediaColumnNames).AddRow(
		id, "image", "generated/"+id.String()+".png", nil, int64(2048),
		"image/png", ".png", 1024, 1024, nil,
		"black-forest-labs/flux-schnell", nil, []byte(`{}`),
		"local", nil, nil, nil, time.Now().UTC(), nil,
	)
}

func TestMediaInsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMediaRepository(db)

	media := &models.Media{
		ID:              uuid.New(),
		Type:            models.MediaTypeImage,
		StoragePath:     "generated/test.png",
		StorageProvider: "local",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO media")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), media)
	require.NoError(t, err)
	assert.False(t, media.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMediaRepository(db)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM media WHERE id").
		WithArgs(id).
		WillReturnRows(mediaRow(id))

	media, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, media.ID)
	assert.Equal(t, models.MediaTypeImage, media.Type)
	assert.Equal(t, "local", media.StorageProvider)
}

func TestMediaGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMediaRepository(db)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM media WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(mediaColumnNames))

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMediaRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE jobs SET media_id = NULL").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM media").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaDeleteNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMediaRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE jobs SET media_id = NULL").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM media").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}
