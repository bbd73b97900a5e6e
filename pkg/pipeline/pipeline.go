// Package pipeline moves one uploaded document through store, metadata,
// chunk, embed and persist, applying the UPLOADED -> PROCESSED | FAILED state
// machine and classifying every fault before it reaches the caller.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/internal/types"
	"github.com/xhad/ragingest/pkg/correlation"
	"github.com/xhad/ragingest/pkg/errors"
	"github.com/xhad/ragingest/pkg/llm"
	"github.com/xhad/ragingest/pkg/objectstore"
	"github.com/xhad/ragingest/pkg/processor"
)

// Stage names used as the operation of classified errors.
const (
	StageValidate      = "validate"
	StageStoreObject   = "store_object"
	StageWriteMetadata = "write_metadata"
	StageChunk         = "chunk"
	StageEmbed         = "embed"
	StagePersistChunks = "persist_chunks"
	StageUpdateStatus  = "update_status"
	StageMarkFailed    = "mark_failed"
	StageLoadDocument  = "load_document"
	StageReadObject    = "read_object"
	StageListDocuments = "list_documents"
	StageEmbedQuery    = "embed_query"
	StageSearch        = "search"
)

// Pipeline is the ingestion orchestrator. It holds no per-document state, so
// one Pipeline serves concurrent Ingest calls.
type Pipeline struct {
	objects  types.ObjectStore
	metadata types.MetadataStore
	vectors  types.VectorStore
	embedder types.Embedder

	processor      processor.Processor
	maxFileSize    int64
	storeTimeout   time.Duration
	embedTimeout   time.Duration
	persistTimeout time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// New creates a pipeline over already-connected collaborators. The caller
// owns their lifetime.
func New(
	objects types.ObjectStore,
	metadata types.MetadataStore,
	vectors types.VectorStore,
	embedder types.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if objects == nil {
		return nil, ErrObjectStoreRequired
	}
	if metadata == nil {
		return nil, ErrMetadataStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		objects:        objects,
		metadata:       metadata,
		vectors:        vectors,
		embedder:       embedder,
		processor:      processor.Default(),
		maxFileSize:    DefaultMaxFileSize,
		storeTimeout:   DefaultStoreTimeout,
		embedTimeout:   DefaultEmbedTimeout,
		persistTimeout: DefaultPersistTimeout,
		now:            time.Now,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")
	return p, nil
}

// IngestRequest is one upload. AssetID and CorrelationID are optional; an
// asset id is generated when empty and an AUTO correlation id likewise.
type IngestRequest struct {
	TenantID      string
	AssetID       string
	File          models.UploadedFile
	CorrelationID string
	SourceURL     string
}

// run carries what one Ingest call knows about its document.
type run struct {
	started time.Time
	errCtx  errors.Context
	logger  *slog.Logger
	doc     models.Document
}

// Ingest stores the upload, records it as UPLOADED, then chunks, embeds and
// persists it and marks it PROCESSED. Once the UPLOADED record exists, any
// later failure leaves it FAILED with the classified message. Returned errors
// are always *errors.PipelineError.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*models.ProcessingResult, error) {
	corrID := correlation.OrNew(req.CorrelationID)
	ctx = correlation.WithID(ctx, corrID)

	r := &run{
		started: p.now(),
		errCtx:  errors.NewContext(corrID, "ingest", req.TenantID),
		logger:  p.logger.With("tenant_id", req.TenantID),
	}

	in, err := p.validate(req)
	if err != nil {
		return nil, p.fail(ctx, r, StageValidate, err)
	}
	r.logger = r.logger.With("asset_id", in.assetID)
	r.errCtx.Metadata = map[string]any{"asset_id": in.assetID}
	r.logger.InfoContext(ctx, "ingest started",
		"file_name", in.fileName,
		"content_type", in.contentType,
		"size", len(in.data))

	// 1. store the raw bytes; nothing to undo on failure
	key := objectstore.Key(in.tenantID, in.assetID)
	var loc models.ObjectLocation
	err = p.call(ctx, p.storeTimeout, func(ctx context.Context) error {
		var err error
		loc, err = p.objects.Put(ctx, key, in.contentType, in.data)
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, r, StageStoreObject, err)
	}

	// 2. the UPLOADED record is the commit point
	now := p.now().UTC()
	r.doc = models.Document{
		TenantID:      in.tenantID,
		AssetID:       in.assetID,
		FileName:      in.fileName,
		FileSize:      int64(len(in.data)),
		ContentType:   in.contentType,
		Status:        models.StatusUploaded,
		ObjectKey:     loc.Key,
		CorrelationID: corrID,
		Source: &models.SourceMetadata{
			ExtractionMethod: in.extracted.Method,
			WordCount:        in.wordCount,
			CharCount:        in.charCount,
			SourceURL:        req.SourceURL,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = p.call(ctx, p.storeTimeout, func(ctx context.Context) error {
		return p.metadata.Upsert(ctx, r.doc)
	})
	if err != nil {
		return nil, p.fail(ctx, r, StageWriteMetadata, err)
	}

	// 3-5. from here on a failure is recorded on the document
	chunkCount, totalTokens, err := p.process(ctx, r, in.extracted.Text)
	if err != nil {
		pe := p.fail(ctx, r, stageOf(err), err)
		p.markFailed(ctx, r, pe)
		return nil, pe
	}

	// 6. the chunks are already valid, so a failed status write only warns
	updated := p.now().UTC()
	err = p.call(ctx, p.storeTimeout, func(ctx context.Context) error {
		return p.metadata.UpdateStatus(ctx, in.tenantID, in.assetID, models.StatusUpdate{
			Status:      models.StatusProcessed,
			ChunkCount:  chunkCount,
			TotalTokens: totalTokens,
			UpdatedAt:   updated,
		})
	})
	if err != nil {
		pe := p.classify(StageUpdateStatus, err).WithContext(r.errCtx)
		r.logger.WarnContext(ctx, "document processed but status update failed",
			"code", pe.Code,
			"err", pe)
	}

	r.doc.Status = models.StatusProcessed
	r.doc.ChunkCount = chunkCount
	r.doc.TotalTokens = totalTokens
	r.doc.UpdatedAt = updated

	elapsed := p.now().Sub(r.started)
	r.logger.InfoContext(ctx, "ingest completed",
		"chunks", chunkCount,
		"tokens", totalTokens,
		"duration_ms", elapsed.Milliseconds())

	return &models.ProcessingResult{
		Status:         models.StatusProcessed,
		Document:       r.doc,
		UploadedFile:   loc,
		ChunkCount:     chunkCount,
		TotalTokens:    totalTokens,
		ProcessingTime: elapsed,
	}, nil
}

// stageError tags a fault with the stage that raised it so Ingest can
// classify it after the fact.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageOf(err error) string {
	if se, ok := err.(*stageError); ok {
		return se.stage
	}
	return StageChunk
}

// process runs chunk, embed and persist.
func (p *Pipeline) process(ctx context.Context, r *run, text string) (int, int, error) {
	chunks, err := p.processor.Process(text)
	if err != nil {
		return 0, 0, &stageError{StageChunk, err}
	}
	if len(chunks) == 0 {
		return 0, 0, &stageError{StageChunk, errors.BusinessLogic(errors.CodeBusinessLogic, "document produced no chunks", nil)}
	}
	r.logger.DebugContext(ctx, "chunked document", "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	var embeddings []models.Embedding
	err = p.call(ctx, p.embedTimeout, func(ctx context.Context) error {
		var err error
		embeddings, err = p.embedder.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		return 0, 0, &stageError{StageEmbed, err}
	}
	if len(embeddings) != len(chunks) {
		return 0, 0, &stageError{StageEmbed, errors.ExternalAPI(llm.ServiceName, http.StatusBadGateway,
			fmt.Errorf("embedding response has %d vectors for %d chunks", len(embeddings), len(chunks))).
			WithCode(errors.CodeEmbeddingFailed)}
	}

	processingMs := p.now().Sub(r.started).Milliseconds()
	records := make([]models.ChunkRecord, len(chunks))
	totalTokens := 0
	for i, c := range chunks {
		records[i] = models.ChunkRecord{
			TenantID:   r.doc.TenantID,
			DocumentID: r.doc.AssetID,
			Chunk:      c,
			Embedding:  embeddings[i],
			Metadata: models.ChunkMetadata{
				WordCount:      processor.WordCount(c.Content),
				EmbeddingModel: p.embedder.Model(),
				ProcessingMs:   processingMs,
				CorrelationID:  r.doc.CorrelationID,
			},
		}
		totalTokens += embeddings[i].TokenCount
	}

	err = p.call(ctx, p.persistTimeout, func(ctx context.Context) error {
		return p.vectors.ReplaceChunks(ctx, r.doc.TenantID, r.doc.AssetID, records)
	})
	if err != nil {
		return 0, 0, &stageError{StagePersistChunks, err}
	}
	return len(records), totalTokens, nil
}

// call runs fn under its own timeout derived from ctx.
func (p *Pipeline) call(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// classify turns a stage fault into a PipelineError. Adapters already return
// typed errors; the fallbacks cover collaborators that do not.
func (p *Pipeline) classify(stage string, err error) *errors.PipelineError {
	if se, ok := err.(*stageError); ok {
		err = se.err
	}
	if pe, ok := errors.As(err); ok {
		return pe
	}

	switch stage {
	case StageValidate:
		return errors.Validation(errors.CodeValidation, err.Error())
	case StageChunk:
		return errors.BusinessLogic(errors.CodeBusinessLogic, "failed to chunk document", err)
	case StageEmbed, StageEmbedQuery:
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = 0
		}
		if errors.Is(err, context.Canceled) {
			return errors.Infrastructure(stage, err, true)
		}
		return errors.ExternalAPI(llm.ServiceName, status, err).WithCode(errors.CodeEmbeddingFailed)
	}
	return errors.Infrastructure(stage, err, true)
}

// fail classifies err, attaches the run's context and logs it by severity.
func (p *Pipeline) fail(ctx context.Context, r *run, stage string, err error) *errors.PipelineError {
	ectx := r.errCtx
	ectx.Operation = stage
	pe := p.classify(stage, err).WithContext(ectx)
	errors.Log(ctx, r.logger, pe)
	return pe
}

// markFailed records pe on the document. It runs even when ctx is already
// cancelled, and a failure here is logged without replacing pe.
func (p *Pipeline) markFailed(ctx context.Context, r *run, pe *errors.PipelineError) {
	ctx = context.WithoutCancel(ctx)
	err := p.call(ctx, p.storeTimeout, func(ctx context.Context) error {
		return p.metadata.UpdateStatus(ctx, r.doc.TenantID, r.doc.AssetID, models.StatusUpdate{
			Status:       models.StatusFailed,
			ErrorMessage: fmt.Sprintf("%s: %s", pe.Code, pe.Message),
			UpdatedAt:    p.now().UTC(),
		})
	})
	if err != nil {
		markErr := p.classify(StageMarkFailed, err)
		r.logger.ErrorContext(ctx, "failed to record FAILED status",
			"original_code", pe.Code,
			"code", markErr.Code,
			"alert", true,
			"err", markErr)
	}
}
