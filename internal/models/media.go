package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaType enumerates the kinds of artifacts the service can store.
type MediaType string

// Media kinds.
const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// Media holds the metadata of a generated artifact. The bytes live in the
// storage backend under StoragePath; once created they are immutable.
type Media struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Type MediaType `db:"media_type" json:"type"`

	// StoragePath is the backend-relative key; unique per storage provider.
	StoragePath string  `db:"storage_path" json:"storage_path"`
	StorageURL  *string `db:"storage_url" json:"storage_url,omitempty"`

	FileSizeBytes *int64  `db:"file_size_bytes" json:"file_size_bytes,omitempty"`
	MimeType      *string `db:"mime_type" json:"mime_type,omitempty"`
	FileExtension *string `db:"file_extension" json:"file_extension,omitempty"`

	Width           *int     `db:"width" json:"width,omitempty"`
	Height          *int     `db:"height" json:"height,omitempty"`
	DurationSeconds *float64 `db:"duration_seconds" json:"duration_seconds,omitempty"`

	GenerationModelName    *string `db:"generation_model_name" json:"generation_model_name,omitempty"`
	GenerationModelVersion *string `db:"generation_model_version" json:"generation_model_version,omitempty"`
	GenerationParams       JSONMap `db:"generation_params" json:"generation_params,omitempty"`

	StorageProvider string  `db:"storage_provider" json:"storage_provider"`
	BucketName      *string `db:"bucket_name" json:"bucket_name,omitempty"`
	ETag            *string `db:"etag" json:"etag,omitempty"`
	ExtraMetadata   JSONMap `db:"extra_metadata" json:"extra_metadata,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// IsExpired reports whether the artifact's expiry time has elapsed.
// Artifacts without an expiry never expire.
func (m *Media) IsExpired() bool {
	return m.ExpiresAt != nil && time.Now().UTC().After(*m.ExpiresAt)
}

// AspectRatio returns width/height for images and videos, or nil when
// dimensions are unknown.
func (m *Media) AspectRatio() *float64 {
	if m.Width == nil || m.Height == nil || *m.Height == 0 {
		return nil
	}
	r := float64(*m.Width) / float64(*m.Height)
	return &r
}

// Extension returns the file extension, or "" when unknown.
func (m *Media) Extension() string {
	if m.FileExtension == nil {
		return ""
	}
	return *m.FileExtension
}
