package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/errors"
)

type MetadataStoreConfig struct {
	TableName string
}

// MetadataStore keeps one row per (tenant_id, asset_id) with indexes for
// listing a tenant's documents by time, optionally filtered by status.
type MetadataStore struct {
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
}

const documentColumns = `tenant_id, asset_id, file_name, file_size, content_type, status, object_key,
	correlation_id, error_message, chunk_count, total_tokens, source_metadata, created_at, updated_at`

func NewMetadataStore(ctx context.Context, pool *pgxpool.Pool, config MetadataStoreConfig, logger *slog.Logger) (*MetadataStore, error) {
	if config.TableName == "" {
		config.TableName = "documents"
	}
	if logger == nil {
		logger = slog.Default()
	}

	ms := &MetadataStore{
		pool:   pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
		logger: logger.With("component", "metadata-store"),
	}
	if err := ms.initialize(ctx, config.TableName); err != nil {
		return nil, err
	}
	return ms, nil
}

func (ms *MetadataStore) initialize(ctx context.Context, name string) error {
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				tenant_id TEXT NOT NULL,
				asset_id TEXT NOT NULL,
				file_name TEXT NOT NULL,
				file_size BIGINT NOT NULL,
				content_type TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('UPLOADED', 'PROCESSED', 'FAILED')),
				object_key TEXT,
				correlation_id TEXT NOT NULL,
				error_message TEXT,
				chunk_count INTEGER NOT NULL DEFAULT 0,
				total_tokens INTEGER NOT NULL DEFAULT 0,
				source_metadata JSONB,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (tenant_id, asset_id)
			)`, ms.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (tenant_id, created_at DESC)`,
			pgx.Identifier{name + "_tenant_created_idx"}.Sanitize(), ms.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (tenant_id, status, created_at DESC)`,
			pgx.Identifier{name + "_tenant_status_created_idx"}.Sanitize(), ms.table),
	}
	for _, stmt := range stmts {
		if _, err := ms.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize metadata table: %w", err)
		}
	}
	return nil
}

// Upsert writes doc. A repeated asset keeps its original created_at and
// starts the new run from doc's status with counters reset.
func (ms *MetadataStore) Upsert(ctx context.Context, doc models.Document) error {
	var source []byte
	if doc.Source != nil {
		var err error
		if source, err = json.Marshal(doc.Source); err != nil {
			return storeError("write metadata", fmt.Errorf("failed to marshal source metadata: %w", err))
		}
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (tenant_id, asset_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			file_size = EXCLUDED.file_size,
			content_type = EXCLUDED.content_type,
			status = EXCLUDED.status,
			object_key = EXCLUDED.object_key,
			correlation_id = EXCLUDED.correlation_id,
			error_message = EXCLUDED.error_message,
			chunk_count = EXCLUDED.chunk_count,
			total_tokens = EXCLUDED.total_tokens,
			source_metadata = EXCLUDED.source_metadata,
			updated_at = EXCLUDED.updated_at`,
		ms.table, documentColumns)

	_, err := ms.pool.Exec(ctx, stmt,
		doc.TenantID,
		doc.AssetID,
		sanitizeUTF8(doc.FileName),
		doc.FileSize,
		doc.ContentType,
		string(doc.Status),
		nullString(doc.ObjectKey),
		doc.CorrelationID,
		nullString(doc.ErrorMessage),
		doc.ChunkCount,
		doc.TotalTokens,
		source,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return storeError("write metadata", fmt.Errorf("failed to upsert document: %w", err))
	}
	return nil
}

// UpdateStatus applies a transition out of UPLOADED. Updating a record that is
// already terminal is a BusinessLogic fault; a missing record is NotFound.
func (ms *MetadataStore) UpdateStatus(ctx context.Context, tenantID, assetID string, update models.StatusUpdate) error {
	if !models.CanTransition(models.StatusUploaded, update.Status) {
		return invalidTransition(models.StatusUploaded, update.Status)
	}

	stmt := fmt.Sprintf(`
		UPDATE %s SET
			status = $3,
			error_message = $4,
			chunk_count = $5,
			total_tokens = $6,
			updated_at = $7
		WHERE tenant_id = $1 AND asset_id = $2 AND status = $8`,
		ms.table)

	tag, err := ms.pool.Exec(ctx, stmt,
		tenantID,
		assetID,
		string(update.Status),
		nullString(update.ErrorMessage),
		update.ChunkCount,
		update.TotalTokens,
		update.UpdatedAt,
		string(models.StatusUploaded),
	)
	if err != nil {
		return storeError("update status", fmt.Errorf("failed to update status: %w", err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	current, err := ms.Get(ctx, tenantID, assetID)
	if err != nil {
		return err
	}
	return invalidTransition(current.Status, update.Status)
}

func invalidTransition(from, to models.Status) *errors.PipelineError {
	return errors.BusinessLogic(errors.CodeInvalidStatusTransition,
		fmt.Sprintf("cannot move document from %s to %s", from, to), nil)
}

func notFound(assetID string) *errors.PipelineError {
	return errors.NotFound("document", assetID).WithCode(errors.CodeDocumentNotFound)
}

func (ms *MetadataStore) Get(ctx context.Context, tenantID, assetID string) (*models.Document, error) {
	row := ms.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE tenant_id = $1 AND asset_id = $2", documentColumns, ms.table),
		tenantID, assetID)

	doc, err := scanDocument(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(assetID)
	}
	if err != nil {
		return nil, storeError("get document", err)
	}
	return doc, nil
}

func (ms *MetadataStore) List(ctx context.Context, query models.ListQuery) ([]models.Document, error) {
	var (
		where = []string{"tenant_id = $1"}
		args  = []any{query.TenantID}
	)
	if query.Status != "" {
		args = append(args, string(query.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY created_at DESC LIMIT $%d",
		documentColumns, ms.table, strings.Join(where, " AND "), len(args))

	rows, err := ms.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeError("list documents", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storeError("list documents", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list documents", err)
	}
	return docs, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		doc                     models.Document
		status                  string
		objectKey, errorMessage *string
		source                  []byte
	)
	err := row.Scan(
		&doc.TenantID,
		&doc.AssetID,
		&doc.FileName,
		&doc.FileSize,
		&doc.ContentType,
		&status,
		&objectKey,
		&doc.CorrelationID,
		&errorMessage,
		&doc.ChunkCount,
		&doc.TotalTokens,
		&source,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = models.Status(status)
	if objectKey != nil {
		doc.ObjectKey = *objectKey
	}
	if errorMessage != nil {
		doc.ErrorMessage = *errorMessage
	}
	if len(source) > 0 {
		doc.Source = &models.SourceMetadata{}
		if err := json.Unmarshal(source, doc.Source); err != nil {
			return nil, fmt.Errorf("failed to decode source metadata: %w", err)
		}
	}
	return &doc, nil
}
