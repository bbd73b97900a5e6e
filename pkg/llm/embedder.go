package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/errors"
)

// ServiceName identifies the embedding API in classified errors.
const ServiceName = "embedding-api"

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// EmbedderConfig represents the configuration for an embedding client.
type EmbedderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string

	// Dimensions is the expected vector length; 0 disables the check.
	Dimensions    int
	BatchSize     int
	TokenEncoding string
}

// Embedder turns chunk texts into vectors through an OpenAI-compatible or
// Ollama embedding endpoint.
type Embedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
	tokens   TokenCounter
	logger   *slog.Logger
}

func NewEmbedderWithConfig(config EmbedderConfig, logger *slog.Logger) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 64
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOllama:
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		llm, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		client = llm
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		token := config.APIKey
		if token == "" {
			// local OpenAI-compatible servers accept any token
			token = "none"
		}
		opts = append(opts, openai.WithToken(token))
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return NewEmbedderWithClient(emb, config, logger), nil
}

// NewEmbedderWithClient wraps an existing langchaingo embedder.
func NewEmbedderWithClient(emb embeddings.Embedder, config EmbedderConfig, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		config:   config,
		embedder: emb,
		tokens:   NewTokenCounter(config.TokenEncoding, logger),
		logger:   logger.With("component", "embedder", "model", config.Model),
	}
}

func (e *Embedder) Model() string {
	return e.config.Model
}

// EmbedDocuments embeds all texts in one logical request and returns a vector
// and a token count per text, in input order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([]models.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.DebugContext(ctx, "generating embeddings", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, classify(err)
	}
	if len(vectors) != len(texts) {
		return nil, malformed(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}

	out := make([]models.Embedding, len(texts))
	for i, vec := range vectors {
		if err := e.checkDimensions(vec); err != nil {
			return nil, malformed(fmt.Errorf("embedding %d: %w", i, err))
		}
		out[i] = models.Embedding{
			Vector:     vec,
			TokenCount: e.tokens.Count(texts[i]),
		}
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, classify(err)
	}
	if err := e.checkDimensions(vec); err != nil {
		return nil, malformed(err)
	}
	return vec, nil
}

func (e *Embedder) checkDimensions(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector")
	}
	if e.config.Dimensions > 0 && len(vec) != e.config.Dimensions {
		return fmt.Errorf("expected %d dimensions, got %d", e.config.Dimensions, len(vec))
	}
	return nil
}

var statusPattern = regexp.MustCompile(`(?i)status(?: code)?[:= ]+(\d{3})`)

func malformed(err error) *errors.PipelineError {
	return errors.ExternalAPI(ServiceName, 502, fmt.Errorf("malformed embedding response: %w", err)).
		WithCode(errors.CodeEmbeddingFailed)
}

// classify maps a client error to a typed fault, keeping the status code the
// remote signalled when the client exposes one in its message.
func classify(err error) *errors.PipelineError {
	if stderrors.Is(err, context.Canceled) {
		return errors.Infrastructure("embed chunks", err, true)
	}

	status := 502
	var netErr net.Error
	var opErr *net.OpError
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		status = 0
	case stderrors.As(err, &netErr) && netErr.Timeout():
		status = 0
	case stderrors.As(err, &opErr):
		status = 503
	default:
		if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
			if code, convErr := strconv.Atoi(m[1]); convErr == nil {
				status = code
			}
		}
	}

	pe := errors.ExternalAPI(ServiceName, status, err)
	if pe.Category == errors.CategoryExternalAPI {
		pe = pe.WithCode(errors.CodeEmbeddingFailed)
	}
	return pe
}
