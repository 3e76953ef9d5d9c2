package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/fjacquet/mediagen/internal/models"
	log "github.com/sirupsen/logrus"
)

// S3Backend stores objects in an S3-compatible object store (AWS S3 or MinIO).
// The client is created once and is safe for concurrent use; the SDK manages
// connection pooling internally.
type S3Backend struct {
	client        s3iface.S3API
	defaultBucket string
	endpoint      string
	region        string
}

// NewS3Backend creates an object-store backend from the configuration.
// A custom endpoint (MinIO) switches the client to path-style addressing.
func NewS3Backend(cfg models.Config) *S3Backend {
	awsCfg := aws.NewConfig().WithRegion(cfg.Storage.S3Region)
	if cfg.Storage.S3Endpoint != "" {
		awsCfg = awsCfg.
			WithEndpoint(cfg.Storage.S3Endpoint).
			WithS3ForcePathStyle(true).
			WithDisableSSL(!cfg.Storage.S3UseSSL)
	}
	if cfg.Storage.S3AccessKey != "" {
		awsCfg = awsCfg.WithCredentials(
			credentials.NewStaticCredentials(cfg.Storage.S3AccessKey, cfg.Storage.S3SecretKey, ""))
	}

	sess := session.Must(session.NewSession(awsCfg))
	return &S3Backend{
		client:        s3.New(sess),
		defaultBucket: cfg.Storage.S3Bucket,
		endpoint:      cfg.Storage.S3Endpoint,
		region:        cfg.Storage.S3Region,
	}
}

// Provider returns the backend kind.
func (b *S3Backend) Provider() string {
	return models.StorageS3
}

func (b *S3Backend) bucketOrDefault(bucket string) string {
	if bucket != "" {
		return bucket
	}
	return b.defaultBucket
}

// publicURL computes the externally reachable URL for an object: custom
// endpoint form for MinIO, virtual-hosted AWS form otherwise.
func (b *S3Backend) publicURL(bucket, key string) string {
	if b.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(b.endpoint, "/"), bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, b.region, key)
}

// Upload writes content under key and records contentType as object metadata.
func (b *S3Backend) Upload(ctx context.Context, content []byte, key, contentType, bucket string) (*UploadResult, error) {
	bkt := b.bucketOrDefault(bucket)

	input := &s3.PutObjectInput{
		Bucket: aws.String(bkt),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := b.client.PutObjectWithContext(ctx, input)
	if err != nil {
		return nil, classifyS3Error("upload", bkt, key, err)
	}

	res := &UploadResult{
		StoragePath: key,
		PublicURL:   b.publicURL(bkt, key),
	}
	if out.ETag != nil {
		res.ETag = strings.Trim(*out.ETag, `"`)
	}

	log.WithFields(log.Fields{"bucket": bkt, "key": key, "size": len(content)}).Info("File uploaded to S3")
	return res, nil
}

// Download returns the object body stream and the content length when the
// store reports one.
func (b *S3Backend) Download(ctx context.Context, path, bucket string) (io.ReadCloser, int64, error) {
	bkt := b.bucketOrDefault(bucket)

	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bkt),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, 0, classifyS3Error("download", bkt, path, err)
	}

	length := int64(-1)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	return out.Body, length, nil
}

// Delete removes the object. S3 deletes are idempotent: deleting an absent
// key succeeds, so absence is detected with a head call first.
func (b *S3Backend) Delete(ctx context.Context, path, bucket string) (bool, error) {
	bkt := b.bucketOrDefault(bucket)

	present, err := b.Exists(ctx, path, bkt)
	if err != nil {
		return false, err
	}
	if !present {
		return false, nil
	}

	if _, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bkt),
		Key:    aws.String(path),
	}); err != nil {
		return false, classifyS3Error("delete", bkt, path, err)
	}

	log.WithFields(log.Fields{"bucket": bkt, "key": path}).Info("File deleted from S3")
	return true, nil
}

// Exists reports object presence using a head call.
func (b *S3Backend) Exists(ctx context.Context, path, bucket string) (bool, error) {
	bkt := b.bucketOrDefault(bucket)

	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bkt),
		Key:    aws.String(path),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, classifyS3Error("head", bkt, path, err)
	}
	return true, nil
}

// isS3NotFound reports whether err is an object-absent response.
func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode() == 404
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}

// classifyS3Error maps SDK failures onto the package sentinels.
func classifyS3Error(op, bucket, key string, err error) error {
	if isS3NotFound(err) {
		return fmt.Errorf("%w: %s (bucket %s)", ErrNotFound, key, bucket)
	}

	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case "RequestError", "RequestCanceled", "RequestTimeout":
			return fmt.Errorf("%w: s3 %s %s/%s: %v", ErrUnavailable, op, bucket, key, err)
		}
	}
	return fmt.Errorf("%w: s3 %s %s/%s: %v", ErrIO, op, bucket, key, err)
}
