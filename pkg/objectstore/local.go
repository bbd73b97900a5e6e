package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/errors"
)

// Local stores objects as files below a root directory.
type Local struct {
	root   string
	logger *slog.Logger
}

func NewLocal(root string, logger *slog.Logger) (*Local, error) {
	if root == "" {
		root = "data/objects"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}
	return &Local{root: root, logger: logger.With("component", "object-store", "root", root)}, nil
}

func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Validationf(errors.CodeValidation, "invalid object key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *Local) Put(ctx context.Context, key string, _ string, data []byte) (models.ObjectLocation, error) {
	if err := ctx.Err(); err != nil {
		return models.ObjectLocation{}, errors.Infrastructure("store object", err, true)
	}
	p, err := l.path(key)
	if err != nil {
		return models.ObjectLocation{}, err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return models.ObjectLocation{}, errors.Infrastructure("store object", err, true)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return models.ObjectLocation{}, errors.Infrastructure("store object", err, true)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return models.ObjectLocation{}, errors.Infrastructure("store object", err, true)
	}
	if err := tmp.Close(); err != nil {
		return models.ObjectLocation{}, errors.Infrastructure("store object", err, true)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return models.ObjectLocation{}, errors.Infrastructure("store object", err, true)
	}

	sum := sha256.Sum256(data)
	l.logger.DebugContext(ctx, "stored object", "key", key, "size", len(data))
	return models.ObjectLocation{
		Key:  key,
		Size: int64(len(data)),
		ETag: hex.EncodeToString(sum[:]),
	}, nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Infrastructure("load object", err, true)
	}
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.NotFound("object", key)
	}
	if err != nil {
		return nil, errors.Infrastructure("load object", err, true)
	}
	return data, nil
}
