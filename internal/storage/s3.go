package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BerylCAtieno/audit-auto-api/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// s3Storage archives uploads in one bucket, every key under prefix.
type s3Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Storage connects to an S3-compatible endpoint and creates the
// archive bucket when it does not exist yet.
func NewS3Storage(ctx context.Context, cfg *config.Config) (Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.S3BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check archive bucket %q: %w", cfg.S3BucketName, err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.S3BucketName, minio.MakeBucketOptions{Region: cfg.S3Region})
		if err != nil {
			return nil, fmt.Errorf("failed to create archive bucket %q: %w", cfg.S3BucketName, err)
		}
	}

	prefix := strings.Trim(cfg.S3Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &s3Storage{client: client, bucket: cfg.S3BucketName, prefix: prefix}, nil
}

func (s *s3Storage) objectName(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid archive key %q", key)
	}
	return s.prefix + key, nil
}

// mapError turns missing-object and missing-bucket responses into the
// package sentinels.
func (s *s3Storage) mapError(err error, key string) error {
	switch minio.ToErrorResponse(err).Code {
	case minio.NoSuchKey:
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case minio.NoSuchBucket:
		return fmt.Errorf("%w: %s", ErrBucketNotFound, s.bucket)
	}
	return err
}

func (s *s3Storage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, s.mapError(err, key))
	}
	return nil
}

func (s *s3Storage) Download(ctx context.Context, key string) ([]byte, error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}

	object, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(err, key)
	}
	defer object.Close()

	// GetObject is lazy; Stat issues the request and surfaces a missing key.
	if _, err := object.Stat(); err != nil {
		return nil, s.mapError(err, key)
	}
	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived %s: %w", key, s.mapError(err, key))
	}
	return data, nil
}

// Delete is idempotent: removing a missing key succeeds.
func (s *s3Storage) Delete(ctx context.Context, key string) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete archived %s: %w", key, s.mapError(err, key))
	}
	return nil
}
