package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/xhad/ragingest/internal/models"
)

// MemoryMetadataStore is an in-process MetadataStore with the same transition
// rules as the Postgres one. It backs the CLI when no database is configured.
type MemoryMetadataStore struct {
	mu   sync.RWMutex
	docs map[string]models.Document
}

func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{docs: make(map[string]models.Document)}
}

func docKey(tenantID, id string) string {
	return tenantID + "\x00" + id
}

func (m *MemoryMetadataStore) Upsert(_ context.Context, doc models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey(doc.TenantID, doc.AssetID)
	if prev, ok := m.docs[key]; ok {
		doc.CreatedAt = prev.CreatedAt
	}
	m.docs[key] = doc
	return nil
}

func (m *MemoryMetadataStore) UpdateStatus(_ context.Context, tenantID, assetID string, update models.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey(tenantID, assetID)
	doc, ok := m.docs[key]
	if !ok {
		return notFound(assetID)
	}
	if !models.CanTransition(doc.Status, update.Status) {
		return invalidTransition(doc.Status, update.Status)
	}

	doc.Status = update.Status
	doc.ErrorMessage = update.ErrorMessage
	doc.ChunkCount = update.ChunkCount
	doc.TotalTokens = update.TotalTokens
	doc.UpdatedAt = update.UpdatedAt
	m.docs[key] = doc
	return nil
}

func (m *MemoryMetadataStore) Get(_ context.Context, tenantID, assetID string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[docKey(tenantID, assetID)]
	if !ok {
		return nil, notFound(assetID)
	}
	return &doc, nil
}

func (m *MemoryMetadataStore) List(_ context.Context, query models.ListQuery) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []models.Document
	for _, doc := range m.docs {
		if doc.TenantID != query.TenantID {
			continue
		}
		if query.Status != "" && doc.Status != query.Status {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].AssetID < docs[j].AssetID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Len returns the number of stored documents across all tenants.
func (m *MemoryMetadataStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

type memoryChunk struct {
	record    models.ChunkRecord
	createdAt time.Time
}

// MemoryVectorStore is an in-process VectorStore doing exact nearest-neighbour
// search over every chunk of the tenant.
type MemoryVectorStore struct {
	mu     sync.RWMutex
	chunks map[string][]memoryChunk
	now    func() time.Time
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		chunks: make(map[string][]memoryChunk),
		now:    time.Now,
	}
}

func (m *MemoryVectorStore) ReplaceChunks(_ context.Context, tenantID, documentID string, records []models.ChunkRecord) error {
	now := m.now()
	stored := make([]memoryChunk, 0, len(records))
	for _, rec := range records {
		rec.TenantID = tenantID
		rec.DocumentID = documentID
		rec.Vector = append([]float32(nil), rec.Vector...)
		stored = append(stored, memoryChunk{record: rec, createdAt: now})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey(tenantID, documentID)
	if len(stored) == 0 {
		delete(m.chunks, key)
		return nil
	}
	m.chunks[key] = stored
	return nil
}

func (m *MemoryVectorStore) Search(_ context.Context, query models.SearchQuery) ([]models.SearchResult, error) {
	if _, err := distanceOperator(query.Metric); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var results []models.SearchResult
	for _, chunks := range m.chunks {
		for _, c := range chunks {
			if c.record.TenantID != query.TenantID {
				continue
			}
			results = append(results, models.SearchResult{
				DocumentID: c.record.DocumentID,
				ChunkIndex: c.record.Index,
				Content:    c.record.Content,
				Distance:   distance(query.Metric, query.Vector, c.record.Vector),
				Metadata:   c.record.Metadata,
				CreatedAt:  c.createdAt,
			})
		}
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	limit := query.Limit
	if limit <= 0 {
		limit = 5
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Chunks returns the stored records of one document in index order.
func (m *MemoryVectorStore) Chunks(tenantID, documentID string) []models.ChunkRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.chunks[docKey(tenantID, documentID)]
	out := make([]models.ChunkRecord, 0, len(stored))
	for _, c := range stored {
		out = append(out, c.record)
	}
	return out
}

// distance mirrors the pgvector operators: cosine distance, euclidean distance
// and negative inner product.
func distance(metric models.DistanceMetric, a, b []float32) float64 {
	var dot, na, nb, sq float64
	for i := range min(len(a), len(b)) {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		sq += (x - y) * (x - y)
	}

	switch metric {
	case models.DistanceL2:
		return math.Sqrt(sq)
	case models.DistanceInnerProduct:
		return -dot
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
