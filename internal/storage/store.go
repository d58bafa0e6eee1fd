package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hugh/asset-shipper/pkg/config"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the read side of a bucket holding mapper output.
type ObjectStore interface {
	// List returns every key under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the object body or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// New builds the object store selected by cfg.Provider.
func New(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (ObjectStore, error) {
	logger.Info("opening object store", "provider", cfg.Provider, "bucket", cfg.Bucket)

	switch cfg.Provider {
	case "s3":
		return NewS3Store(ctx, cfg)
	case "gcs":
		return NewGCSStore(ctx, cfg)
	case "minio":
		return NewMinioStore(cfg)
	case "local", "":
		return NewLocalStore(cfg.LocalRoot)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}
