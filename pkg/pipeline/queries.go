package pipeline

import (
	"context"
	"strings"

	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/correlation"
	"github.com/xhad/ragingest/pkg/errors"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 1000
	defaultSearchLimit = 5
	maxSearchLimit     = 100
)

// newRun starts the bookkeeping of a read-side operation.
func (p *Pipeline) newRun(ctx context.Context, operation, tenantID, correlationID string) (context.Context, *run) {
	corrID := correlation.OrNew(correlationID)
	return correlation.WithID(ctx, corrID), &run{
		started: p.now(),
		errCtx:  errors.NewContext(corrID, operation, tenantID),
		logger:  p.logger.With("tenant_id", tenantID),
	}
}

// Reprocess re-runs ingest for a stored document from its original bytes.
// Metadata is upserted and chunks are replaced under the same asset id.
func (p *Pipeline) Reprocess(ctx context.Context, tenantID, assetID, correlationID string) (*models.ProcessingResult, error) {
	ctx, r := p.newRun(ctx, "reprocess", tenantID, correlationID)

	doc, err := p.getDocument(ctx, tenantID, assetID)
	if err != nil {
		return nil, p.fail(ctx, r, StageLoadDocument, err)
	}
	if doc.ObjectKey == "" {
		return nil, p.fail(ctx, r, StageReadObject,
			errors.BusinessLogic(errors.CodeBusinessLogic, "document has no stored object", nil))
	}

	var data []byte
	err = p.call(ctx, p.storeTimeout, func(ctx context.Context) error {
		var err error
		data, err = p.objects.Get(ctx, doc.ObjectKey)
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, r, StageReadObject, err)
	}

	req := IngestRequest{
		TenantID: tenantID,
		AssetID:  assetID,
		File: models.UploadedFile{
			FileName:    doc.FileName,
			ContentType: doc.ContentType,
			Data:        data,
		},
		CorrelationID: correlation.FromContext(ctx),
	}
	if doc.Source != nil {
		req.SourceURL = doc.Source.SourceURL
	}
	r.logger.InfoContext(ctx, "reprocessing document", "asset_id", assetID, "previous_status", doc.Status)
	return p.Ingest(ctx, req)
}

func (p *Pipeline) getDocument(ctx context.Context, tenantID, assetID string) (*models.Document, error) {
	if err := validateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := validateAssetID(assetID); err != nil {
		return nil, err
	}

	var doc *models.Document
	err := p.call(ctx, p.storeTimeout, func(ctx context.Context) error {
		var err error
		doc, err = p.metadata.Get(ctx, tenantID, assetID)
		return err
	})
	return doc, err
}

// GetDocument returns the metadata record of one document.
func (p *Pipeline) GetDocument(ctx context.Context, tenantID, assetID string) (*models.Document, error) {
	ctx, r := p.newRun(ctx, "get_document", tenantID, correlation.FromContext(ctx))
	doc, err := p.getDocument(ctx, tenantID, assetID)
	if err != nil {
		return nil, p.fail(ctx, r, StageLoadDocument, err)
	}
	return doc, nil
}

// ListDocuments returns a tenant's documents newest first, optionally only
// those in one status.
func (p *Pipeline) ListDocuments(ctx context.Context, query models.ListQuery) ([]models.Document, error) {
	ctx, r := p.newRun(ctx, "list_documents", query.TenantID, correlation.FromContext(ctx))

	if err := validateTenantID(query.TenantID); err != nil {
		return nil, p.fail(ctx, r, StageValidate, err)
	}
	if query.Status != "" && !query.Status.Valid() {
		return nil, p.fail(ctx, r, StageValidate,
			errors.Validationf(errors.CodeValidation, "status %q is invalid", query.Status))
	}
	switch {
	case query.Limit < 0:
		return nil, p.fail(ctx, r, StageValidate,
			errors.Validation(errors.CodeValidation, "limit is too small"))
	case query.Limit == 0:
		query.Limit = defaultListLimit
	case query.Limit > maxListLimit:
		query.Limit = maxListLimit
	}

	var docs []models.Document
	err := p.call(ctx, p.storeTimeout, func(ctx context.Context) error {
		var err error
		docs, err = p.metadata.List(ctx, query)
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, r, StageListDocuments, err)
	}
	return docs, nil
}

// SearchRequest is a nearest-neighbour query over one tenant's chunks.
type SearchRequest struct {
	TenantID string
	Query    string
	Limit    int
	Metric   models.DistanceMetric
}

// Search embeds the query text and returns the closest chunks.
func (p *Pipeline) Search(ctx context.Context, req SearchRequest) ([]models.SearchResult, error) {
	ctx, r := p.newRun(ctx, "search", req.TenantID, correlation.FromContext(ctx))

	if err := validateTenantID(req.TenantID); err != nil {
		return nil, p.fail(ctx, r, StageValidate, err)
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, p.fail(ctx, r, StageValidate, errors.Validation(errors.CodeValidation, "query is required"))
	}
	if req.Metric == "" {
		req.Metric = models.DistanceCosine
	}
	if !req.Metric.Valid() {
		return nil, p.fail(ctx, r, StageValidate,
			errors.Validationf(errors.CodeValidation, "metric %q is invalid; use cosine, l2 or inner_product", req.Metric))
	}
	limit := req.Limit
	switch {
	case limit < 0:
		return nil, p.fail(ctx, r, StageValidate, errors.Validation(errors.CodeValidation, "limit is too small"))
	case limit == 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}

	var vector []float32
	err := p.call(ctx, p.embedTimeout, func(ctx context.Context) error {
		var err error
		vector, err = p.embedder.EmbedQuery(ctx, query)
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, r, StageEmbedQuery, err)
	}

	var results []models.SearchResult
	err = p.call(ctx, p.persistTimeout, func(ctx context.Context) error {
		var err error
		results, err = p.vectors.Search(ctx, models.SearchQuery{
			TenantID: req.TenantID,
			Vector:   vector,
			Limit:    limit,
			Metric:   req.Metric,
		})
		return err
	})
	if err != nil {
		return nil, p.fail(ctx, r, StageSearch, err)
	}

	r.logger.DebugContext(ctx, "search completed", "results", len(results), "metric", req.Metric)
	return results, nil
}
