package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Server config
	if c.Server.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Message: "listen address is required",
		})
	}

	// Validate Database config
	if c.Database.URL != "" && !validURL(c.Database.URL) {
		errors = append(errors, ValidationError{
			Field:   "database.url",
			Message: "invalid database URL",
		})
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Embedding config
	switch c.Embedding.Provider {
	case "ollama":
		if c.Embedding.BaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding.base_url",
				Message: "Ollama base URL is required",
			})
		}
	case "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider %q, use ollama or openai", c.Embedding.Provider),
		})
	}

	if c.Embedding.BaseURL != "" && !validURL(c.Embedding.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "embedding.base_url",
			Message: "invalid embedding base URL",
		})
	}

	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate ObjectStore config
	switch c.ObjectStore.Backend {
	case "minio":
		if c.ObjectStore.Endpoint == "" {
			errors = append(errors, ValidationError{
				Field:   "object_store.endpoint",
				Message: "endpoint is required for the minio backend",
			})
		}
		if c.ObjectStore.Bucket == "" {
			errors = append(errors, ValidationError{
				Field:   "object_store.bucket",
				Message: "bucket is required for the minio backend",
			})
		}
	case "local":
		if c.ObjectStore.Root == "" {
			errors = append(errors, ValidationError{
				Field:   "object_store.root",
				Message: "root is required for the local backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "object_store.backend",
			Message: fmt.Sprintf("unknown backend %q, use minio or local", c.ObjectStore.Backend),
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if o := c.Processor.ChunkOverlap; o != nil && (*o < 0 || *o >= c.Processor.ChunkSize) {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Ingest config
	if c.Ingest.MaxFileSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.max_file_size",
			Message: "max_file_size must be positive",
		})
	}

	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"ingest.store_timeout", c.Ingest.StoreTimeout},
		{"ingest.embed_timeout", c.Ingest.EmbedTimeout},
		{"ingest.persist_timeout", c.Ingest.PersistTimeout},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			errors = append(errors, ValidationError{
				Field:   t.field,
				Message: "timeout must be positive",
			})
		}
	}

	if c.Ingest.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.workers",
			Message: "workers must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate extensions format
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate Logging config
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level),
		})
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be text or json",
		})
	}

	return errors
}
