// Package objectstore keeps the raw bytes of uploaded documents, either in an
// S3-compatible bucket (MinIO) or under a local directory.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/xhad/ragingest/internal/types"
)

const ServiceName = "object-store"

const (
	BackendMinIO = "minio"
	BackendLocal = "local"
)

type Config struct {
	Backend   string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	// Root is the directory used by the local backend.
	Root string
}

// New builds the backend named by config.Backend.
func New(ctx context.Context, config Config, logger *slog.Logger) (types.ObjectStore, error) {
	switch config.Backend {
	case BackendMinIO:
		return NewMinIO(ctx, config, logger)
	case BackendLocal, "":
		return NewLocal(config.Root, logger)
	}
	return nil, fmt.Errorf("unsupported object store backend: %s", config.Backend)
}

// Key builds the object key of a document's upload. It depends only on the
// tenant and asset, so re-ingesting an asset overwrites its previous object
// whatever the new file is called.
func Key(tenantID, assetID string) string {
	return path.Join(tenantID, assetID, "source")
}
