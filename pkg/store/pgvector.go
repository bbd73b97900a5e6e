package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/errors"
)

type VectorStoreConfig struct {
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
}

// VectorStore keeps chunk embeddings in a pgvector table keyed by
// (tenant_id, document_id, chunk_index).
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	table  string
	logger *slog.Logger
}

func NewVectorStore(ctx context.Context, pool *pgxpool.Pool, config VectorStoreConfig, logger *slog.Logger) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "document_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
		logger: logger.With("component", "vector-store"),
	}

	if err := vs.initialize(ctx); err != nil {
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tenant_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			start_char INTEGER NOT NULL,
			end_char INTEGER NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, document_id, chunk_index)
		)`, vs.table, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		pgx.Identifier{vs.config.TableName + "_embedding_idx"}.Sanitize(), vs.table)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// ReplaceChunks deletes the document's previous chunks and inserts records in
// one transaction, so readers see either the old set or the new one.
func (vs *VectorStore) ReplaceChunks(ctx context.Context, tenantID, documentID string, records []models.ChunkRecord) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return storeError("persist chunks", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	deleted, err := tx.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE tenant_id = $1 AND document_id = $2", vs.table),
		tenantID, documentID)
	if err != nil {
		return storeError("persist chunks", fmt.Errorf("failed to delete chunks: %w", err))
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, document_id, chunk_index, content, start_char, end_char, token_count, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		vs.table)

	for start := 0; start < len(records); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(records))

		batch := &pgx.Batch{}
		for _, rec := range records[start:end] {
			meta, err := json.Marshal(rec.Metadata)
			if err != nil {
				return storeError("persist chunks", fmt.Errorf("failed to marshal chunk metadata: %w", err))
			}
			batch.Queue(stmt,
				tenantID,
				documentID,
				rec.Index,
				sanitizeUTF8(rec.Content),
				rec.StartChar,
				rec.EndChar,
				rec.TokenCount,
				pgvector.NewVector(rec.Vector),
				meta,
			)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return storeError("persist chunks", fmt.Errorf("failed to insert chunks: %w", err))
		}
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return storeError("persist chunks", fmt.Errorf("failed to commit transaction: %w", err))
	}

	vs.logger.DebugContext(ctx, "replaced chunks",
		"tenant_id", tenantID,
		"document_id", documentID,
		"deleted", deleted.RowsAffected(),
		"inserted", len(records))
	return nil
}

func distanceOperator(metric models.DistanceMetric) (string, error) {
	switch metric {
	case models.DistanceCosine, "":
		return "<=>", nil
	case models.DistanceL2:
		return "<->", nil
	case models.DistanceInnerProduct:
		return "<#>", nil
	}
	return "", errors.Validationf(errors.CodeValidation, "invalid distance metric %q", metric)
}

// Search returns the tenant's chunks nearest to query.Vector.
func (vs *VectorStore) Search(ctx context.Context, query models.SearchQuery) ([]models.SearchResult, error) {
	op, err := distanceOperator(query.Metric)
	if err != nil {
		return nil, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}

	sql := fmt.Sprintf(`
		SELECT document_id, chunk_index, content, metadata, created_at, embedding %s $2 AS distance
		FROM %s
		WHERE tenant_id = $1
		ORDER BY distance
		LIMIT $3`,
		op, vs.table)

	rows, err := vs.pool.Query(ctx, sql, query.TenantID, pgvector.NewVector(query.Vector), limit)
	if err != nil {
		return nil, storeError("search chunks", fmt.Errorf("failed to query chunks: %w", err))
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var (
			r    models.SearchResult
			meta []byte
		)
		if err := rows.Scan(&r.DocumentID, &r.ChunkIndex, &r.Content, &meta, &r.CreatedAt, &r.Distance); err != nil {
			return nil, storeError("search chunks", fmt.Errorf("failed to scan row: %w", err))
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, storeError("search chunks", fmt.Errorf("failed to decode chunk metadata: %w", err))
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("search chunks", err)
	}

	return results, nil
}
