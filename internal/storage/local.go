package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fjacquet/mediagen/internal/models"
	log "github.com/sirupsen/logrus"
)

// LocalBackend stores objects as files under a root directory.
// Writes go through a temp file plus rename so a crashed upload never leaves
// a partially written object at the final path.
type LocalBackend struct {
	root string
}

// NewLocalBackend creates a local backend rooted at root, creating the
// directory if needed.
func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating storage root %s: %v", ErrIO, root, err)
	}
	return &LocalBackend{root: root}, nil
}

// Provider returns the backend kind.
func (b *LocalBackend) Provider() string {
	return models.StorageLocal
}

// resolve maps a storage path onto the filesystem. Absolute paths are used
// as-is so records written with an older root still resolve.
func (b *LocalBackend) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.root, path)
}

// Upload writes content atomically under key. The bucket argument is ignored;
// the local backend exposes no public URL.
func (b *LocalBackend) Upload(ctx context.Context, content []byte, key, contentType, bucket string) (*UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := b.resolve(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating parent directories for %s: %v", ErrIO, dst, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating temp file for %s: %v", ErrIO, dst, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("%w: writing %s: %v", ErrIO, dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("%w: closing %s: %v", ErrIO, dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("%w: renaming %s into place: %v", ErrIO, dst, err)
	}

	log.WithFields(log.Fields{"path": dst, "size": len(content)}).Info("File uploaded to local storage")
	return &UploadResult{StoragePath: dst}, nil
}

// chunkedReader wraps a file so reads surface at most downloadChunkSize bytes
// per call, matching the streaming contract of the object-store backend.
type chunkedReader struct {
	f *os.File
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(p) > downloadChunkSize {
		p = p[:downloadChunkSize]
	}
	return r.f.Read(p)
}

func (r *chunkedReader) Close() error {
	return r.f.Close()
}

// Download opens the file for streaming and returns its size.
func (b *LocalBackend) Download(ctx context.Context, path, bucket string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	full := b.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, 0, fmt.Errorf("%w: stat %s: %v", ErrIO, full, err)
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: opening %s: %v", ErrIO, full, err)
	}
	return &chunkedReader{f: f}, info.Size(), nil
}

// Delete removes the file. Deleting an absent file is not an error.
func (b *LocalBackend) Delete(ctx context.Context, path, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	full := b.resolve(path)
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: removing %s: %v", ErrIO, full, err)
	}
	log.WithField("path", full).Info("File deleted from local storage")
	return true, nil
}

// Exists reports whether the file is present.
func (b *LocalBackend) Exists(ctx context.Context, path, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(b.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	return true, nil
}
