package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/correlation"
	"github.com/xhad/ragingest/pkg/errors"
	"github.com/xhad/ragingest/pkg/objectstore"
	"github.com/xhad/ragingest/pkg/pipeline"
	"github.com/xhad/ragingest/pkg/processor"
	"github.com/xhad/ragingest/pkg/store"
	"github.com/xhad/ragingest/server"
)

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([]models.Embedding, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([]models.Embedding, len(texts))
	for i, t := range texts {
		out[i] = models.Embedding{Vector: []float32{float32(len(t)), 1, 0}, TokenCount: processor.WordCount(t)}
	}
	return out, nil
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (e *stubEmbedder) Model() string { return "stub-embed" }

type testServer struct {
	handler  http.Handler
	metadata *store.MemoryMetadataStore
	vectors  *store.MemoryVectorStore
	embedder *stubEmbedder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	objects, err := objectstore.NewLocal(t.TempDir(), nil)
	require.NoError(t, err)

	ts := &testServer{
		metadata: store.NewMemoryMetadataStore(),
		vectors:  store.NewMemoryVectorStore(),
		embedder: &stubEmbedder{},
	}
	chunker, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 25, ChunkOverlap: processor.Overlap(3)})
	require.NoError(t, err)
	p, err := pipeline.New(objects, ts.metadata, ts.vectors, ts.embedder,
		pipeline.WithProcessor(chunker),
		pipeline.WithMaxFileSize(1024),
	)
	require.NoError(t, err)

	srv, err := server.NewWithConfig(p, server.Config{})
	require.NoError(t, err)
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, tenant, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/tenants/"+tenant+"/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type successBody struct {
	Success  bool `json:"success"`
	Document struct {
		TenantID      string `json:"tenantId"`
		AssetID       string `json:"assetId"`
		FileName      string `json:"fileName"`
		FileSize      int64  `json:"fileSize"`
		ContentType   string `json:"contentType"`
		Status        string `json:"status"`
		CorrelationID string `json:"correlationId"`
	} `json:"document"`
	ChunkCount  int `json:"chunkCount"`
	TotalTokens int `json:"totalTokens"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errors.Response {
	t.Helper()
	var resp errors.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

const text = "First sentence here. Second sentence here. Third sentence here."

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestIngest_Success(t *testing.T) {
	ts := newTestServer(t)

	req := uploadRequest(t, "acme", "notes.txt", text, map[string]string{"asset_id": "doc-1"})
	req.Header.Set(correlation.HeaderCorrelationID, "REQ-1")
	rec := ts.do(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "REQ-1", rec.Header().Get(correlation.HeaderCorrelationID))

	var body successBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "acme", body.Document.TenantID)
	assert.Equal(t, "doc-1", body.Document.AssetID)
	assert.Equal(t, "notes.txt", body.Document.FileName)
	assert.Equal(t, int64(len(text)), body.Document.FileSize)
	assert.Equal(t, "text/plain", body.Document.ContentType)
	assert.Equal(t, "PROCESSED", body.Document.Status)
	assert.Equal(t, "REQ-1", body.Document.CorrelationID)
	assert.Equal(t, 3, body.ChunkCount)
	assert.Equal(t, 11, body.TotalTokens)

	assert.Len(t, ts.vectors.Chunks("acme", "doc-1"), 3)
}

func TestIngest_RequestIDHeaderAndGeneratedID(t *testing.T) {
	ts := newTestServer(t)

	req := uploadRequest(t, "acme", "notes.txt", text, nil)
	req.Header.Set(correlation.HeaderRequestID, "REQ-2")
	rec := ts.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "REQ-2", rec.Header().Get(correlation.HeaderCorrelationID))

	rec = ts.do(uploadRequest(t, "acme", "notes.txt", text, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(correlation.HeaderCorrelationID), correlation.AutoPrefix+"-"))
}

func TestIngest_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		code   string
		status int
	}{
		{
			name:   "missing file",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "acme", "", "", nil) },
			code:   errors.CodeValidation,
			status: http.StatusBadRequest,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/v1/tenants/acme/documents", strings.NewReader("{}"))
			},
			code:   errors.CodeValidation,
			status: http.StatusBadRequest,
		},
		{
			name:   "empty file",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "acme", "notes.txt", "", nil) },
			code:   errors.CodeEmptyFile,
			status: http.StatusBadRequest,
		},
		{
			name:   "too large",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "acme", "notes.txt", strings.Repeat("a ", 600), nil) },
			code:   errors.CodeFileTooLarge,
			status: http.StatusBadRequest,
		},
		{
			name:   "bad tenant",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "ac.me", "notes.txt", text, nil) },
			code:   errors.CodeInvalidTenantID,
			status: http.StatusBadRequest,
		},
		{
			name:   "unsupported type",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "acme", "image.png", "\x89PNG", nil) },
			code:   errors.CodeUnsupportedContentType,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			req := tt.req(t)
			req.Header.Set(correlation.HeaderCorrelationID, "REQ-V")
			rec := ts.do(req)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, errors.CategoryValidation, resp.Error.Category)
			assert.False(t, resp.Error.Retryable)
			assert.Equal(t, "REQ-V", resp.Error.Context.CorrelationID)
			assert.Nil(t, resp.Details)
			assert.Equal(t, 0, ts.metadata.Len())
		})
	}
}

func TestIngest_EmbeddingFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.embedder.err = errors.ExternalAPI("embedding-api", http.StatusServiceUnavailable, errors.New("overloaded"))

	req := uploadRequest(t, "acme", "notes.txt", text, map[string]string{"asset_id": "doc-1"})
	rec := ts.do(req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, errors.CategoryExternalAPI, resp.Error.Category)
	assert.True(t, resp.Error.Retryable)
	assert.Equal(t, "embed", resp.Error.Context.Operation)

	doc, err := ts.metadata.Get(context.Background(), "acme", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
}

func TestIngest_DebugDetails(t *testing.T) {
	ts := newTestServer(t)
	ts.embedder.err = errors.ExternalAPI("embedding-api", http.StatusServiceUnavailable, errors.New("overloaded"))

	req := uploadRequest(t, "acme", "notes.txt", text, nil)
	req.Header.Set(server.HeaderDebug, "true")
	resp := decodeError(t, ts.do(req))
	require.NotNil(t, resp.Details)
	assert.Contains(t, resp.Details["cause"], "overloaded")

	req = uploadRequest(t, "acme", "notes.txt", text, nil)
	req.URL.RawQuery = "debug=true"
	resp = decodeError(t, ts.do(req))
	assert.NotNil(t, resp.Details)
}

func TestDocuments_GetListReprocess(t *testing.T) {
	ts := newTestServer(t)

	for _, id := range []string{"doc-1", "doc-2"} {
		rec := ts.do(uploadRequest(t, "acme", "notes.txt", text, map[string]string{"asset_id": id}))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/v1/tenants/acme/documents/doc-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc models.Document
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	assert.Equal(t, "doc-1", doc.AssetID)
	assert.Equal(t, models.StatusProcessed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/v1/tenants/acme/documents?status=processed&limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Documents []models.Document `json:"documents"`
		Count     int               `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/v1/tenants/acme/documents?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/v1/tenants/other/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Documents)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/v1/tenants/acme/documents/doc-2/reprocess", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body successBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "doc-2", body.Document.AssetID)
	assert.Equal(t, 3, body.ChunkCount)
}

func TestDocuments_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/v1/tenants/acme/documents/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeDocumentNotFound, decodeError(t, rec).Error.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/v1/tenants/acme/documents/missing/reprocess", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(uploadRequest(t, "acme", "notes.txt", text, map[string]string{"asset_id": "doc-1"}))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := strings.NewReader(`{"query": "second sentence", "limit": 2, "metric": "l2"}`)
	rec = ts.do(httptest.NewRequest(http.MethodPost, "/v1/tenants/acme/search", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []models.SearchResult `json:"results"`
		Count   int                   `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "doc-1", resp.Results[0].DocumentID)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/v1/tenants/acme/search", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/v1/tenants/acme/search", strings.NewReader(`{"query": "x", "metric": "hamming"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewWithConfig_RequiresService(t *testing.T) {
	_, err := server.NewWithConfig(nil, server.Config{})
	assert.Error(t, err)
}
