package llm_test

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragingest/pkg/errors"
	"github.com/xhad/ragingest/pkg/llm"
)

type fakeClient struct {
	dims    int
	err     error
	drop    int
	queries []string
}

func (f *fakeClient) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for i := range texts[:len(texts)-f.drop] {
		vec := make([]float32, f.dims)
		vec[0] = float32(i)
		out = append(out, vec)
	}
	return out, nil
}

func (f *fakeClient) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, text)
	return make([]float32, f.dims), nil
}

var config = llm.EmbedderConfig{
	Model:      "nomic-embed-text:latest",
	Dimensions: 4,
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{BaseURL: "http://localhost:11434"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text:latest", emb.Model())

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}

func TestEmbedDocuments(t *testing.T) {
	emb := llm.NewEmbedderWithClient(&fakeClient{dims: 4}, config, nil)

	got, err := emb.EmbedDocuments(context.Background(), []string{"This is the first chunk.", "And this is the second chunk."})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i, e := range got {
		assert.Len(t, e.Vector, 4)
		assert.Equal(t, float32(i), e.Vector[0])
		assert.Positive(t, e.TokenCount)
	}
}

func TestEmbedDocuments_Empty(t *testing.T) {
	emb := llm.NewEmbedderWithClient(&fakeClient{dims: 4}, config, nil)
	got, err := emb.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmbedDocuments_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"missing vectors", &fakeClient{dims: 4, drop: 1}},
		{"wrong dimensions", &fakeClient{dims: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := llm.NewEmbedderWithClient(tt.client, config, nil)
			_, err := emb.EmbedDocuments(context.Background(), []string{"a", "b"})

			pe, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.CategoryExternalAPI, pe.Category)
			assert.Equal(t, errors.CodeEmbeddingFailed, pe.Code)
			assert.Equal(t, llm.ServiceName, pe.Service)
		})
	}
}

func TestEmbedDocuments_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  errors.Category
		retryable bool
		upstream  int
	}{
		{"timeout", context.DeadlineExceeded, errors.CategoryExternalAPI, true, 504},
		{"wrapped timeout", fmt.Errorf("post: %w", context.DeadlineExceeded), errors.CategoryExternalAPI, true, 504},
		{"connection refused", &net.OpError{Op: "dial", Err: fmt.Errorf("connection refused")}, errors.CategoryExternalAPI, true, 503},
		{"server error", fmt.Errorf("API returned unexpected status code: 500: internal"), errors.CategoryExternalAPI, true, 500},
		{"bad request", fmt.Errorf("API returned unexpected status code: 400: input too long"), errors.CategoryExternalAPI, false, 400},
		{"quota", fmt.Errorf("API returned unexpected status code: 429: quota"), errors.CategoryRateLimit, true, 429},
		{"opaque", fmt.Errorf("model not loaded"), errors.CategoryExternalAPI, true, 502},
		{"cancelled", context.Canceled, errors.CategoryInfrastructure, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := llm.NewEmbedderWithClient(&fakeClient{err: tt.err}, config, nil)
			_, err := emb.EmbedDocuments(context.Background(), []string{"chunk"})

			pe, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.category, pe.Category)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Equal(t, tt.upstream, pe.UpstreamStatus)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestEmbedQuery(t *testing.T) {
	client := &fakeClient{dims: 4}
	emb := llm.NewEmbedderWithClient(client, config, nil)

	vec, err := emb.EmbedQuery(context.Background(), "what is a chunk")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, []string{"what is a chunk"}, client.queries)
}

func TestEstimateTokenCounter(t *testing.T) {
	c := llm.NewTokenCounter("", nil)
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abc"))
	assert.Equal(t, 3, c.Count("0123456789"))
}
