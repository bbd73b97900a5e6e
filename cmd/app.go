package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xhad/ragingest/internal/types"
	"github.com/xhad/ragingest/pkg/llm"
	"github.com/xhad/ragingest/pkg/objectstore"
	"github.com/xhad/ragingest/pkg/pipeline"
	"github.com/xhad/ragingest/pkg/processor"
	"github.com/xhad/ragingest/pkg/store"
)

// app owns the collaborators built from the config for one command run.
type app struct {
	pool     *pgxpool.Pool
	pipeline *pipeline.Pipeline
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	var metadata types.MetadataStore
	var vectors types.VectorStore
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.pool = pool

		vs, err := store.NewVectorStore(ctx, pool, store.VectorStoreConfig{
			TableName: cfg.Database.ChunkTable,
			VectorDim: cfg.Database.VectorDim,
			BatchSize: cfg.Database.BatchSize,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		ms, err := store.NewMetadataStore(ctx, pool, store.MetadataStoreConfig{
			TableName: cfg.Database.DocumentTable,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize metadata store: %w", err)
		}
		vectors, metadata = vs, ms
	} else {
		logger.Warn("no database configured, documents are kept in memory for this run only")
		vectors = store.NewMemoryVectorStore()
		metadata = store.NewMemoryMetadataStore()
	}

	objects, err := objectstore.New(ctx, objectstore.Config{
		Backend:   cfg.ObjectStore.Backend,
		Endpoint:  cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		Bucket:    cfg.ObjectStore.Bucket,
		UseSSL:    cfg.ObjectStore.UseSSL,
		Region:    cfg.ObjectStore.Region,
		Root:      cfg.ObjectStore.Root,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:      cfg.Embedding.Provider,
		Model:         cfg.Embedding.Model,
		BaseURL:       cfg.Embedding.BaseURL,
		APIKey:        cfg.Embedding.APIKey,
		Dimensions:    cfg.Database.VectorDim,
		BatchSize:     cfg.Embedding.BatchSize,
		TokenEncoding: cfg.Embedding.TokenEncoding,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	chunker, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid chunking configuration: %w", err)
	}

	a.pipeline, err = pipeline.New(objects, metadata, vectors, embedder,
		pipeline.WithLogger(logger),
		pipeline.WithProcessor(chunker),
		pipeline.WithMaxFileSize(cfg.Ingest.MaxFileSize),
		pipeline.WithTimeouts(cfg.Ingest.StoreTimeout, cfg.Ingest.EmbedTimeout, cfg.Ingest.PersistTimeout),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
