/*
Package storage stores profile avatars in S3-compatible object storage.

Clients upload and download through presigned URLs, so image bytes never pass through
this process unless a caller uses Upload directly.
*/
package storage

import (
	"context"
	"io"
	"time"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// ObjectInfo is the subset of object metadata the profile layer checks.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// StorageService defines the public interface for the avatar storage service.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading an object.
	PresignUpload(ctx context.Context, key, mimeType string, fileSize int64, duration time.Duration) (string, error)

	// PresignDownload generates a pre-signed URL for downloading an object.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Upload streams body to key.
	Upload(ctx context.Context, key, mimeType string, body io.Reader) error

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error

	// Stat returns the object's metadata.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// NewStorageService returns the S3-compatible implementation for cfg.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	return newS3Client(ctx, cfg)
}
