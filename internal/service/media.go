package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/repository"
	"github.com/fjacquet/mediagen/internal/storage"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
)

const (
	// Artifact rows are immutable after insertion, so cached metadata can
	// only go stale through deletion, which invalidates explicitly.
	metadataCacheTTL     = 5 * time.Minute
	metadataCacheCleanup = 10 * time.Minute
)

// MediaStore is the persistence surface the media service depends on.
type MediaStore interface {
	Insert(ctx context.Context, media *models.Media) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Media, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MediaService owns artifact metadata and delegates byte access to the
// storage backend.
type MediaService struct {
	store   MediaStore
	backend storage.Backend
	cache   *gocache.Cache
}

// NewMediaService creates a media service.
func NewMediaService(store MediaStore, backend storage.Backend) *MediaService {
	return &MediaService{
		store:   store,
		backend: backend,
		cache:   gocache.New(metadataCacheTTL, metadataCacheCleanup),
	}
}

// Get returns artifact metadata by id, serving repeat lookups from the
// in-process cache.
func (s *MediaService) Get(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	if cached, ok := s.cache.Get(id.String()); ok {
		return cached.(*models.Media), nil
	}

	media, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(id.String(), media)
	return media, nil
}

// Download opens the artifact bytes for streaming. Expired artifacts are
// refused; missing backend objects surface as not found even when the
// metadata row still exists.
func (s *MediaService) Download(ctx context.Context, id uuid.UUID) (*models.Media, io.ReadCloser, int64, error) {
	media, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, 0, err
	}
	if media.IsExpired() {
		return media, nil, 0, ErrExpired
	}

	bucket := ""
	if media.BucketName != nil {
		bucket = *media.BucketName
	}
	body, size, err := s.backend.Download(ctx, media.StoragePath, bucket)
	if errors.Is(err, storage.ErrNotFound) {
		log.WithFields(log.Fields{"media_id": id, "storage_path": media.StoragePath}).
			Warn("Artifact metadata exists but backend object is missing")
		return media, nil, 0, ErrNotFound
	}
	if err != nil {
		return media, nil, 0, err
	}
	return media, body, size, nil
}

// Delete removes the backend object and then the artifact row. The object
// goes first so a failed backend deletion leaves the row intact and the
// request retryable.
func (s *MediaService) Delete(ctx context.Context, id uuid.UUID) error {
	media, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	bucket := ""
	if media.BucketName != nil {
		bucket = *media.BucketName
	}
	if _, err := s.backend.Delete(ctx, media.StoragePath, bucket); err != nil {
		log.WithFields(log.Fields{"media_id": id, "error": err.Error()}).
			Error("Failed to delete backend object")
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.cache.Delete(id.String())

	log.WithField("media_id", id).Info("Deleted media")
	return nil
}
