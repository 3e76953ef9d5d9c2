// Package storage provides a uniform backend abstraction for artifact bytes:
// upload, streaming download, idempotent delete and existence checks over
// either an S3-compatible object store or the local filesystem. The backend
// is selected at construction from the configuration and never mutates job or
// media records.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/fjacquet/mediagen/internal/models"
)

// Sentinel errors returned by backends. Callers classify failures with
// errors.Is; wrapped messages carry the underlying cause.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("storage: object not found")

	// ErrIO indicates an underlying read or write failure. Retryable.
	ErrIO = errors.New("storage: i/o failure")

	// ErrUnavailable indicates the backend could not be reached. Retryable.
	ErrUnavailable = errors.New("storage: backend unavailable")
)

// downloadChunkSize is the chunk size used by streaming local downloads.
const downloadChunkSize = 8 * 1024

// UploadResult describes where an uploaded object landed.
type UploadResult struct {
	// StoragePath is the backend-relative key of the stored object.
	StoragePath string

	// PublicURL is the publicly reachable URL when the backend exposes one,
	// empty for the local backend.
	PublicURL string

	// ETag is the object entity tag reported by the object store, empty for
	// the local backend.
	ETag string
}

// Backend is the uniform capability set over the two storage variants.
// All methods are safe for concurrent use.
type Backend interface {
	// Upload writes content durably under key and returns where it landed.
	// bucket overrides the default bucket for object-store backends and is
	// ignored by the local backend. An observable object is never partially
	// written.
	Upload(ctx context.Context, content []byte, key, contentType, bucket string) (*UploadResult, error)

	// Download returns a streaming reader over the object bytes and the total
	// content length when known (-1 otherwise). The caller must close the
	// reader. Returns ErrNotFound when the object does not exist.
	Download(ctx context.Context, path, bucket string) (io.ReadCloser, int64, error)

	// Delete removes the object. It is idempotent: deleting an absent object
	// returns (false, nil), a removed object returns (true, nil).
	Delete(ctx context.Context, path, bucket string) (bool, error)

	// Exists reports whether the object is present.
	Exists(ctx context.Context, path, bucket string) (bool, error)

	// Provider returns the backend kind, models.StorageS3 or models.StorageLocal.
	Provider() string
}

// New constructs the backend selected by the configuration.
func New(cfg models.Config) (Backend, error) {
	switch cfg.Storage.Backend {
	case models.StorageLocal:
		return NewLocalBackend(cfg.Storage.LocalPath)
	case models.StorageS3:
		return NewS3Backend(cfg), nil
	default:
		return nil, errors.New("storage: unknown backend " + cfg.Storage.Backend)
	}
}
