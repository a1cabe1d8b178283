package storage

import (
	"context"
	"fmt"

	"github.com/kosarica/feed-service/config"
)

// New creates the configured backend.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch StorageType(cfg.Type) {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.BasePath)
	case StorageTypeS3:
		return NewS3Storage(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
