// Package storage archives raw uploaded files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/BerylCAtieno/audit-auto-api/internal/config"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrBucketNotFound = errors.New("archive bucket not found")
)

// Storage keeps the raw bytes of each upload under the key from ObjectKey.
type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// Download returns ErrNotFound when nothing is stored under key.
	Download(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds when nothing is stored under key.
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config) (Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		return NewS3Storage(ctx, cfg)
	case config.StorageLocal, "":
		return NewLocalStorage(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// ObjectKey returns the archive key for an upload. Only the base name of
// filename is kept.
func ObjectKey(documentID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "upload"
	}
	return documentID + "/" + name
}
