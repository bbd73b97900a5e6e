package objectstore

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/errors"
)

type MinIO struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinIO connects to an S3-compatible endpoint and creates the bucket when
// it does not exist yet.
func NewMinIO(ctx context.Context, config Config, logger *slog.Logger) (*MinIO, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if config.Bucket == "" {
		config.Bucket = "ragingest"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	m := &MinIO{
		client: client,
		bucket: config.Bucket,
		logger: logger.With("component", "object-store", "bucket", config.Bucket),
	}
	if err := m.ensureBucket(ctx, config.Region); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MinIO) ensureBucket(ctx context.Context, region string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	m.logger.InfoContext(ctx, "created bucket")
	return nil
}

func (m *MinIO) Put(ctx context.Context, key string, contentType string, data []byte) (models.ObjectLocation, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return models.ObjectLocation{}, minioError("store object", key, err)
	}

	m.logger.DebugContext(ctx, "stored object", "key", key, "size", info.Size)
	return models.ObjectLocation{
		Bucket: m.bucket,
		Key:    key,
		Size:   info.Size,
		ETag:   info.ETag,
	}, nil
}

func (m *MinIO) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioError("load object", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, minioError("load object", key, err)
	}
	return data, nil
}

// minioError maps S3 error responses onto the taxonomy. Only a missing key is
// NotFound; a missing bucket is an Infrastructure fault like any other store
// failure, retryable on 5xx or transport errors.
func minioError(operation, key string, err error) *errors.PipelineError {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Infrastructure(operation, err, true)
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey":
		return errors.NotFound("object", key)
	case resp.StatusCode == 0:
		return errors.Infrastructure(operation, err, true).
			WithMetadata("service", ServiceName)
	}
	return errors.Infrastructure(operation, err, resp.StatusCode >= 500).
		WithMetadata("service", ServiceName).
		WithMetadata("upstream_status", resp.StatusCode).
		WithMetadata("s3_code", resp.Code)
}
