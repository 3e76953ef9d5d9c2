package storage

import (
	"context"
	"io"
	"testing"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return b
}

func TestLocalRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	content := []byte("generated image bytes")

	res, err := b.Upload(ctx, content, "generated/job.png", "image/png", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.StoragePath)
	assert.Empty(t, res.PublicURL, "local backend exposes no public URL")

	body, size, err := b.Download(ctx, res.StoragePath, "")
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, int64(len(content)), size)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalDownloadLargeObjectStreams(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	// Larger than one read chunk, so the content crosses chunk boundaries.
	content := make([]byte, 3*downloadChunkSize+17)
	for i := range content {
		content[i] = byte(i % 251)
	}

	res, err := b.Upload(ctx, content, "generated/big.bin", "application/octet-stream", "")
	require.NoError(t, err)

	body, size, err := b.Download(ctx, res.StoragePath, "")
	require.NoError(t, err)
	defer body.Close()

	require.Equal(t, int64(len(content)), size)

	buf := make([]byte, 2*downloadChunkSize)
	n, err := body.Read(buf)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, downloadChunkSize, "reads are bounded by the chunk size")

	rest, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, content, append(buf[:n], rest...))
}

func TestLocalDownloadMissing(t *testing.T) {
	b := newTestBackend(t)

	_, _, err := b.Download(context.Background(), "generated/absent.png", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalDeleteIdempotent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	res, err := b.Upload(ctx, []byte("x"), "generated/once.png", "image/png", "")
	require.NoError(t, err)

	removed, err := b.Delete(ctx, res.StoragePath, "")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = b.Delete(ctx, res.StoragePath, "")
	require.NoError(t, err)
	assert.False(t, removed, "second delete reports nothing removed")
}

func TestLocalExists(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	ok, err := b.Exists(ctx, "generated/absent.png", "")
	require.NoError(t, err)
	assert.False(t, ok)

	res, err := b.Upload(ctx, []byte("x"), "generated/present.png", "image/png", "")
	require.NoError(t, err)

	ok, err = b.Exists(ctx, res.StoragePath, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalUploadOverwrites(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Upload(ctx, []byte("first"), "generated/job.png", "image/png", "")
	require.NoError(t, err)
	res, err := b.Upload(ctx, []byte("second"), "generated/job.png", "image/png", "")
	require.NoError(t, err)

	body, _, err := b.Download(ctx, res.StoragePath, "")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestNewSelectsBackend(t *testing.T) {
	var cfg models.Config
	cfg.SetDefaults()
	cfg.Storage.Backend = models.StorageLocal
	cfg.Storage.LocalPath = t.TempDir()

	backend, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, models.StorageLocal, backend.Provider())
}
