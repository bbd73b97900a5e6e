// Package server exposes the ingestion pipeline over HTTP.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/correlation"
	"github.com/xhad/ragingest/pkg/pipeline"
)

// Service is the part of the pipeline the HTTP layer drives.
type Service interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (*models.ProcessingResult, error)
	Reprocess(ctx context.Context, tenantID, assetID, correlationID string) (*models.ProcessingResult, error)
	GetDocument(ctx context.Context, tenantID, assetID string) (*models.Document, error)
	ListDocuments(ctx context.Context, query models.ListQuery) ([]models.Document, error)
	Search(ctx context.Context, req pipeline.SearchRequest) ([]models.SearchResult, error)
}

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MaxUploadBytes bounds the request body of an upload. Multipart framing
	// gets a small allowance on top.
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Server struct {
	config  Config
	service Service
	handler http.Handler
	logger  *slog.Logger
}

const multipartOverhead = 1 << 20

func NewWithConfig(service Service, config Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("server requires a service")
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Minute
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 15 * time.Second
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = pipeline.DefaultMaxFileSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		config:  config,
		service: service,
		logger:  config.Logger.With("component", "http"),
	}
	s.handler = s.withCorrelation(s.routes())
	return s, nil
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/tenants/{tenant}/documents", s.handleIngest)
	mux.HandleFunc("GET /v1/tenants/{tenant}/documents", s.handleListDocuments)
	mux.HandleFunc("GET /v1/tenants/{tenant}/documents/{asset}", s.handleGetDocument)
	mux.HandleFunc("POST /v1/tenants/{tenant}/documents/{asset}/reprocess", s.handleReprocess)
	mux.HandleFunc("POST /v1/tenants/{tenant}/search", s.handleSearch)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Handler returns the routed handler with the correlation middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withCorrelation takes the caller's correlation id (or mints one), echoes it
// back and logs the request under it.
func (s *Server) withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := correlation.OrNew(correlation.FromHeaders(r.Header))
		w.Header().Set(correlation.HeaderCorrelationID, id)
		ctx := correlation.WithID(r.Context(), id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.DebugContext(ctx, "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
