package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMedia(t *testing.T, store *testutil.MediaStore, backend *testutil.Backend, content []byte) *models.Media {
	t.Helper()
	media := &models.Media{
		ID:              uuid.New(),
		Type:            models.MediaTypeImage,
		StoragePath:     "generated/test.png",
		StorageProvider: "fake",
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, store.Insert(context.Background(), media))
	if content != nil {
		_, err := backend.Upload(context.Background(), content, media.StoragePath, "image/png", "")
		require.NoError(t, err)
	}
	return media
}

func TestMediaDownload(t *testing.T) {
	store := testutil.NewMediaStore()
	backend := testutil.NewBackend()
	svc := NewMediaService(store, backend)

	content := []byte("png bytes")
	media := seedMedia(t, store, backend, content)

	got, body, size, err := svc.Download(context.Background(), media.ID)
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, media.ID, got.ID)
	assert.Equal(t, int64(len(content)), size)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestMediaDownloadExpired(t *testing.T) {
	store := testutil.NewMediaStore()
	backend := testutil.NewBackend()
	svc := NewMediaService(store, backend)

	media := seedMedia(t, store, backend, []byte("png bytes"))
	past := time.Now().UTC().Add(-time.Hour)
	media.ExpiresAt = &past
	require.NoError(t, store.Insert(context.Background(), media))

	_, _, _, err := svc.Download(context.Background(), media.ID)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestMediaDownloadBackendObjectMissing(t *testing.T) {
	store := testutil.NewMediaStore()
	backend := testutil.NewBackend()
	svc := NewMediaService(store, backend)

	media := seedMedia(t, store, backend, nil)

	_, _, _, err := svc.Download(context.Background(), media.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaDownloadUnknownID(t *testing.T) {
	svc := NewMediaService(testutil.NewMediaStore(), testutil.NewBackend())

	_, _, _, err := svc.Download(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMediaGetCachesMetadata(t *testing.T) {
	store := testutil.NewMediaStore()
	backend := testutil.NewBackend()
	svc := NewMediaService(store, backend)

	media := seedMedia(t, store, backend, nil)

	_, err := svc.Get(context.Background(), media.ID)
	require.NoError(t, err)

	// Removing the row behind the service's back proves the second lookup
	// is served from the cache.
	require.NoError(t, store.Delete(context.Background(), media.ID))

	got, err := svc.Get(context.Background(), media.ID)
	require.NoError(t, err)
	assert.Equal(t, media.ID, got.ID)
}

func TestMediaDelete(t *testing.T) {
	store := testutil.NewMediaStore()
	backend := testutil.NewBackend()
	svc := NewMediaService(store, backend)

	media := seedMedia(t, store, backend, []byte("png bytes"))

	require.NoError(t, svc.Delete(context.Background(), media.ID))

	_, err := svc.Get(context.Background(), media.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, backend.Deleted, media.StoragePath)
}

func TestMediaDeleteBackendFailureKeepsRow(t *testing.T) {
	store := testutil.NewMediaStore()
	backend := testutil.NewBackend()
	svc := NewMediaService(store, backend)

	media := seedMedia(t, store, backend, []byte("png bytes"))
	backend.DeleteErr = errors.New("bucket unreachable")

	err := svc.Delete(context.Background(), media.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")

	// The row survives so the deletion can be retried.
	_, err = store.GetByID(context.Background(), media.ID)
	assert.NoError(t, err)
}

func TestMediaDeleteUnknownID(t *testing.T) {
	svc := NewMediaService(testutil.NewMediaStore(), testutil.NewBackend())
	err := svc.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
