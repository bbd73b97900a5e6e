package models

import "time"

type Status string

const (
	StatusUploaded  Status = "UPLOADED"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// CanTransition allows only UPLOADED -> PROCESSED and UPLOADED -> FAILED.
func CanTransition(from, to Status) bool {
	return from == StatusUploaded && to.Terminal()
}

// SourceMetadata describes how text was obtained from the uploaded bytes.
type SourceMetadata struct {
	ExtractionMethod string `json:"extractionMethod"`
	WordCount        int    `json:"wordCount"`
	CharCount        int    `json:"charCount"`
	SourceURL        string `json:"sourceUrl,omitempty"`
}

// Document is the metadata record of one uploaded file, keyed by (TenantID, AssetID).
type Document struct {
	TenantID      string          `json:"tenantId"`
	AssetID       string          `json:"assetId"`
	FileName      string          `json:"fileName"`
	FileSize      int64           `json:"fileSize"`
	ContentType   string          `json:"contentType"`
	Status        Status          `json:"status"`
	ObjectKey     string          `json:"objectKey,omitempty"`
	CorrelationID string          `json:"correlationId"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	ChunkCount    int             `json:"chunkCount,omitempty"`
	TotalTokens   int             `json:"totalTokens,omitempty"`
	Source        *SourceMetadata `json:"sourceMetadata,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// StatusUpdate carries the fields written alongside a status transition.
type StatusUpdate struct {
	Status       Status
	ErrorMessage string
	ChunkCount   int
	TotalTokens  int
	UpdatedAt    time.Time
}

// ListQuery selects documents of one tenant, newest first.
type ListQuery struct {
	TenantID string
	Status   Status // empty means any status
	Limit    int
}

// UploadedFile is the raw upload as handed over by the transport.
type UploadedFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ObjectLocation is where the object store put the raw bytes.
type ObjectLocation struct {
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	ETag   string `json:"etag,omitempty"`
}

type ProcessingResult struct {
	Status         Status         `json:"status"`
	Document       Document       `json:"document"`
	UploadedFile   ObjectLocation `json:"uploadedFile"`
	ChunkCount     int            `json:"chunkCount"`
	TotalTokens    int            `json:"totalTokens"`
	ProcessingTime time.Duration  `json:"-"`
}
