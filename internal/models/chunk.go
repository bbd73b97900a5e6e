package models

import "time"

// Chunk is one ordered segment of a source text. StartChar and EndChar are rune
// offsets of the window the chunk was cut from; Content is that window trimmed.
type Chunk struct {
	Index     int
	Content   string
	StartChar int
	EndChar   int
}

type Embedding struct {
	Vector     []float32
	TokenCount int
}

// ChunkRecord is a chunk together with its vector as persisted by the vector store.
type ChunkRecord struct {
	TenantID   string
	DocumentID string
	Chunk
	Embedding
	Metadata ChunkMetadata
}

type ChunkMetadata struct {
	WordCount      int    `json:"wordCount"`
	EmbeddingModel string `json:"embeddingModel"`
	ProcessingMs   int64  `json:"processingMs"`
	CorrelationID  string `json:"correlationId,omitempty"`
}

type DistanceMetric string

const (
	DistanceCosine       DistanceMetric = "cosine"
	DistanceL2           DistanceMetric = "l2"
	DistanceInnerProduct DistanceMetric = "inner_product"
)

func (m DistanceMetric) Valid() bool {
	switch m {
	case DistanceCosine, DistanceL2, DistanceInnerProduct:
		return true
	}
	return false
}

type SearchQuery struct {
	TenantID string
	Vector   []float32
	Limit    int
	Metric   DistanceMetric
}

type SearchResult struct {
	DocumentID string        `json:"documentId"`
	ChunkIndex int           `json:"chunkIndex"`
	Content    string        `json:"content"`
	Distance   float64       `json:"distance"`
	Metadata   ChunkMetadata `json:"metadata"`
	CreatedAt  time.Time     `json:"createdAt"`
}
