package types

import (
	"context"

	"github.com/xhad/ragingest/internal/models"
)

// Collaborator contracts. Implementations return *errors.PipelineError values
// so callers never have to inspect raw driver or SDK errors.

type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (models.ObjectLocation, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

type MetadataStore interface {
	// Upsert writes doc keyed by (TenantID, AssetID), replacing any previous run.
	Upsert(ctx context.Context, doc models.Document) error
	// UpdateStatus moves an UPLOADED record to a terminal status.
	UpdateStatus(ctx context.Context, tenantID, assetID string, update models.StatusUpdate) error
	Get(ctx context.Context, tenantID, assetID string) (*models.Document, error)
	List(ctx context.Context, query models.ListQuery) ([]models.Document, error)
}

type VectorStore interface {
	// ReplaceChunks deletes every chunk of documentID and inserts records atomically.
	ReplaceChunks(ctx context.Context, tenantID, documentID string, records []models.ChunkRecord) error
	Search(ctx context.Context, query models.SearchQuery) ([]models.SearchResult, error)
}

type Embedder interface {
	// EmbedDocuments returns one embedding per text, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([]models.Embedding, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}
