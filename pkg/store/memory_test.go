package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/errors"
	"github.com/xhad/ragingest/pkg/store"
)

func uploaded(tenant, asset string, at time.Time) models.Document {
	return models.Document{
		TenantID:      tenant,
		AssetID:       asset,
		FileName:      asset + ".txt",
		FileSize:      12,
		ContentType:   "text/plain",
		Status:        models.StatusUploaded,
		CorrelationID: "TEST-1",
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func TestMemoryMetadataStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryMetadataStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, uploaded("acme", "a1", t0)))
	require.NoError(t, s.UpdateStatus(ctx, "acme", "a1", models.StatusUpdate{
		Status:      models.StatusProcessed,
		ChunkCount:  3,
		TotalTokens: 42,
		UpdatedAt:   t0.Add(time.Second),
	}))

	doc, err := s.Get(ctx, "acme", "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, 42, doc.TotalTokens)

	// terminal records do not move again
	err = s.UpdateStatus(ctx, "acme", "a1", models.StatusUpdate{Status: models.StatusFailed})
	assert.True(t, errors.IsCategory(err, errors.CategoryBusinessLogic))

	// a new run restarts from UPLOADED and keeps created_at
	again := uploaded("acme", "a1", t0.Add(time.Hour))
	require.NoError(t, s.Upsert(ctx, again))
	doc, err = s.Get(ctx, "acme", "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, doc.Status)
	assert.Equal(t, t0, doc.CreatedAt)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryMetadataStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryMetadataStore()

	_, err := s.Get(ctx, "acme", "missing")
	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeDocumentNotFound, pe.Code)
	assert.Equal(t, 404, pe.HTTPStatusCode)

	err = s.UpdateStatus(ctx, "acme", "missing", models.StatusUpdate{Status: models.StatusFailed})
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestMemoryMetadataStore_List(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryMetadataStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Upsert(ctx, uploaded("acme", id, t0.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.Upsert(ctx, uploaded("other", "z", t0)))
	require.NoError(t, s.UpdateStatus(ctx, "acme", "b", models.StatusUpdate{Status: models.StatusFailed, ErrorMessage: "boom"}))

	docs, err := s.List(ctx, models.ListQuery{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{docs[0].AssetID, docs[1].AssetID, docs[2].AssetID})

	docs, err = s.List(ctx, models.ListQuery{TenantID: "acme", Status: models.StatusFailed})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "boom", docs[0].ErrorMessage)

	docs, err = s.List(ctx, models.ListQuery{TenantID: "acme", Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].AssetID)
}

func record(index int, content string, vec ...float32) models.ChunkRecord {
	return models.ChunkRecord{
		Chunk:     models.Chunk{Index: index, Content: content, EndChar: len(content)},
		Embedding: models.Embedding{Vector: vec, TokenCount: 1},
	}
}

func TestMemoryVectorStore_ReplaceChunks(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryVectorStore()

	require.NoError(t, s.ReplaceChunks(ctx, "acme", "doc", []models.ChunkRecord{
		record(0, "one", 1, 0),
		record(1, "two", 0, 1),
		record(2, "three", 1, 1),
	}))
	require.Len(t, s.Chunks("acme", "doc"), 3)

	// re-ingest leaves only the new chunk set
	require.NoError(t, s.ReplaceChunks(ctx, "acme", "doc", []models.ChunkRecord{
		record(0, "only", 1, 0),
	}))
	chunks := s.Chunks("acme", "doc")
	require.Len(t, chunks, 1)
	assert.Equal(t, "only", chunks[0].Content)
	assert.Equal(t, "acme", chunks[0].TenantID)
	assert.Equal(t, "doc", chunks[0].DocumentID)

	require.NoError(t, s.ReplaceChunks(ctx, "acme", "doc", nil))
	assert.Empty(t, s.Chunks("acme", "doc"))
}

func TestMemoryVectorStore_Search(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryVectorStore()

	require.NoError(t, s.ReplaceChunks(ctx, "acme", "doc", []models.ChunkRecord{
		record(0, "east", 1, 0),
		record(1, "north", 0, 1),
		record(2, "north east", 2, 1),
	}))
	require.NoError(t, s.ReplaceChunks(ctx, "other", "doc", []models.ChunkRecord{
		record(0, "hidden", 1, 0),
	}))

	tests := []struct {
		metric models.DistanceMetric
		first  string
	}{
		{models.DistanceCosine, "east"},
		{models.DistanceL2, "east"},
		{models.DistanceInnerProduct, "north east"},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			results, err := s.Search(ctx, models.SearchQuery{
				TenantID: "acme",
				Vector:   []float32{1, 0},
				Limit:    2,
				Metric:   tt.metric,
			})
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, tt.first, results[0].Content)
			assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
			for _, r := range results {
				assert.NotEqual(t, "hidden", r.Content)
			}
		})
	}

	_, err := s.Search(ctx, models.SearchQuery{TenantID: "acme", Vector: []float32{1, 0}, Metric: "manhattan"})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
