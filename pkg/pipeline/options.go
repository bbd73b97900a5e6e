package pipeline

import (
	"log/slog"
	"time"

	"github.com/xhad/ragingest/pkg/errors"
	"github.com/xhad/ragingest/pkg/processor"
)

const (
	// DefaultMaxFileSize is the largest upload accepted, 50 MiB.
	DefaultMaxFileSize int64 = 50 << 20

	DefaultStoreTimeout   = 30 * time.Second
	DefaultEmbedTimeout   = 2 * time.Minute
	DefaultPersistTimeout = 60 * time.Second
)

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithProcessor sets the chunker configuration.
// Default is 1000 runes with 200 runes of overlap.
func WithProcessor(proc processor.Processor) Option {
	return func(p *Pipeline) error {
		p.processor = proc
		return nil
	}
}

// WithMaxFileSize caps the size of accepted uploads.
func WithMaxFileSize(size int64) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			return errors.New("max file size must be positive")
		}
		p.maxFileSize = size
		return nil
	}
}

// WithTimeouts bounds each collaborator call. Zero keeps the default.
// The store timeout covers the object store and every metadata write.
func WithTimeouts(store, embed, persist time.Duration) Option {
	return func(p *Pipeline) error {
		if store > 0 {
			p.storeTimeout = store
		}
		if embed > 0 {
			p.embedTimeout = embed
		}
		if persist > 0 {
			p.persistTimeout = persist
		}
		return nil
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}
