package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/correlation"
	"github.com/xhad/ragingest/pkg/errors"
	"github.com/xhad/ragingest/pkg/pipeline"
)

const HeaderDebug = "X-Debug"

type documentBody struct {
	TenantID      string        `json:"tenantId"`
	AssetID       string        `json:"assetId"`
	FileName      string        `json:"fileName"`
	FileSize      int64         `json:"fileSize"`
	ContentType   string        `json:"contentType"`
	Status        models.Status `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	CorrelationID string        `json:"correlationId"`
}

type ingestResponse struct {
	Success          bool         `json:"success"`
	Document         documentBody `json:"document"`
	ChunkCount       int          `json:"chunkCount"`
	TotalTokens      int          `json:"totalTokens"`
	ProcessingTimeMs int64        `json:"processingTimeMs"`
}

func newIngestResponse(res *models.ProcessingResult) ingestResponse {
	doc := res.Document
	return ingestResponse{
		Success: true,
		Document: documentBody{
			TenantID:      doc.TenantID,
			AssetID:       doc.AssetID,
			FileName:      doc.FileName,
			FileSize:      doc.FileSize,
			ContentType:   doc.ContentType,
			Status:        doc.Status,
			CreatedAt:     doc.CreatedAt,
			CorrelationID: doc.CorrelationID,
		},
		ChunkCount:       res.ChunkCount,
		TotalTokens:      res.TotalTokens,
		ProcessingTimeMs: res.ProcessingTime.Milliseconds(),
	}
}

type listResponse struct {
	Documents []models.Document `json:"documents"`
	Count     int               `json:"count"`
}

type searchRequest struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Metric string `json:"metric"`
}

type searchResponse struct {
	Results []models.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.writeError(w, r, "ingest", tenantID,
				errors.Validationf(errors.CodeFileTooLarge, "file exceeds the maximum size of %d bytes", s.config.MaxUploadBytes))
			return
		}
		s.writeError(w, r, "ingest", tenantID, errors.Validation(errors.CodeValidation, "invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, "ingest", tenantID, errors.Validation(errors.CodeValidation, "file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, "ingest", tenantID, errors.Validation(errors.CodeValidation, "failed to read uploaded file"))
		return
	}

	res, err := s.service.Ingest(r.Context(), pipeline.IngestRequest{
		TenantID: tenantID,
		AssetID:  r.FormValue("asset_id"),
		File: models.UploadedFile{
			FileName:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		},
		CorrelationID: correlation.FromContext(r.Context()),
		SourceURL:     r.FormValue("source_url"),
	})
	if err != nil {
		s.writeError(w, r, "ingest", tenantID, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newIngestResponse(res))
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	res, err := s.service.Reprocess(r.Context(), tenantID, r.PathValue("asset"), correlation.FromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, "reprocess", tenantID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newIngestResponse(res))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	doc, err := s.service.GetDocument(r.Context(), tenantID, r.PathValue("asset"))
	if err != nil {
		s.writeError(w, r, "get_document", tenantID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	q := r.URL.Query()

	query := models.ListQuery{
		TenantID: tenantID,
		Status:   models.Status(strings.ToUpper(q.Get("status"))),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, "list_documents", tenantID, errors.Validationf(errors.CodeValidation, "limit %q is invalid", raw))
			return
		}
		query.Limit = limit
	}

	docs, err := s.service.ListDocuments(r.Context(), query)
	if err != nil {
		s.writeError(w, r, "list_documents", tenantID, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	s.writeJSON(w, http.StatusOK, listResponse{Documents: docs, Count: len(docs)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")

	var req searchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, r, "search", tenantID, errors.Validation(errors.CodeValidation, "invalid search request body"))
		return
	}

	results, err := s.service.Search(r.Context(), pipeline.SearchRequest{
		TenantID: tenantID,
		Query:    req.Query,
		Limit:    req.Limit,
		Metric:   models.DistanceMetric(req.Metric),
	})
	if err != nil {
		s.writeError(w, r, "search", tenantID, err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	s.writeJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func debugRequested(r *http.Request) bool {
	if v, err := strconv.ParseBool(r.URL.Query().Get("debug")); err == nil && v {
		return true
	}
	v, err := strconv.ParseBool(r.Header.Get(HeaderDebug))
	return err == nil && v
}

// writeError renders any error as the failure body. Errors the service did not
// classify itself go through Classify first.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, operation, tenantID string, err error) {
	errCtx := errors.NewContext(correlation.FromContext(r.Context()), operation, tenantID)
	pe := errors.Classify(err, errCtx)

	status := pe.HTTPStatusCode
	if status == 0 {
		status = pe.Category.HTTPStatusCode()
	}
	resp := pe.Response(debugRequested(r))
	if resp.Error.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.Error.RetryAfterSeconds))
	}
	s.logger.DebugContext(r.Context(), "request failed", "code", pe.Code, "status", status)
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to write response", "err", err)
	}
}
