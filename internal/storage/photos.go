// Package storage holds settlement photos in S3-compatible object storage
// and caches per-object existence answers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tbourn/settlement-showcase/internal/remote"
)

// ErrUnsupportedType is returned for uploads that are not an accepted image
// type.
var ErrUnsupportedType = errors.New("storage: unsupported content type")

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// PhotoKey derives a fresh object key for a photo uploaded against the
// draft identified by temporaryID.
func PhotoKey(temporaryID, contentType string) (string, error) {
	ext, ok := imageExt[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", ErrUnsupportedType
	}
	owner := strings.TrimSpace(temporaryID)
	if owner == "" {
		owner = "unassigned"
	}
	return fmt.Sprintf("photos/%s/%s%s", owner, uuid.NewString(), ext), nil
}

// PhotoStore is the object-store surface used by the services.
type PhotoStore interface {
	PresignPut(ctx context.Context, key string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// MinioStore implements PhotoStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

// MinioConfig configures NewMinioStore.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips the bucket-location lookup when set.
	Region string
	// URLTTL is the lifetime of presigned URLs.
	URLTTL time.Duration
}

// NewMinioStore builds a client. It does not contact the server; call
// EnsureBucket at startup for that.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, ttl: ttl}, nil
}

// EnsureBucket creates the bucket when missing.
func (m *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return remote.Wrap(remote.KindProvider, fmt.Errorf("check bucket: %w", err))
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return remote.Wrap(remote.KindProvider, fmt.Errorf("create bucket: %w", err))
		}
	}
	return nil
}

// PresignPut generates a pre-signed PUT URL for a direct browser upload.
func (m *MinioStore) PresignPut(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedPutObject(ctx, m.bucket, key, m.ttl)
	if err != nil {
		return "", remote.Wrap(remote.KindProvider, fmt.Errorf("presign put: %w", err))
	}
	return u.String(), nil
}

// PresignGet generates a pre-signed GET URL.
func (m *MinioStore) PresignGet(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.ttl, nil)
	if err != nil {
		return "", remote.Wrap(remote.KindProvider, fmt.Errorf("presign get: %w", err))
	}
	return u.String(), nil
}

// Exists reports whether key is present in the bucket.
func (m *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, remote.Wrap(remote.KindProvider, fmt.Errorf("stat object: %w", err))
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return remote.Wrap(remote.KindProvider, fmt.Errorf("delete object: %w", err))
	}
	return nil
}
