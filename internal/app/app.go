// Package app assembles the knowledge base from a Config. Both binaries use
// it so the CLI and the MCP server index and search the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bull/knowledge-rag/internal/chunker"
	"github.com/bull/knowledge-rag/internal/config"
	"github.com/bull/knowledge-rag/internal/embedding"
	"github.com/bull/knowledge-rag/internal/indexer"
	"github.com/bull/knowledge-rag/internal/knowledge"
	"github.com/bull/knowledge-rag/internal/metrics"
	"github.com/bull/knowledge-rag/internal/retrieval"
	"github.com/bull/knowledge-rag/internal/storage"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Store     storage.Store
	Chunker   *chunker.Chunker
	Tokens    *embedding.TokenCounter
	Embedder  *embedding.Embedder // nil when no API key is configured
	Metrics   *metrics.Metrics
	Knowledge *knowledge.Service
	Logger    *slog.Logger
}

// New opens the configured store and builds the pipelines on top of it. A
// missing API key is not an error: the App still lists, deletes and reports,
// while ingestion and search degrade as they do without an embedder.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.Open(ctx, storage.Options{
		Backend:         storage.Backend(cfg.Storage.Backend),
		SQLitePath:      cfg.Storage.SQLitePath,
		QdrantHost:      cfg.Storage.QdrantHost,
		QdrantPort:      cfg.Storage.QdrantPort,
		Collection:      cfg.Storage.Collection,
		VectorDimension: cfg.OpenAI.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	a := &App{
		Config: cfg,
		Store:  store,
		Chunker: chunker.New(
			chunker.WithMaxChunkSize(cfg.Chunking.MaxChunkSize),
			chunker.WithMinChunkSize(cfg.Chunking.MinChunkSize),
			chunker.WithOverlap(cfg.Chunking.OverlapSize),
			chunker.WithMinContentLength(cfg.Chunking.MinContentLength),
		),
		Tokens:  embedding.NewTokenCounter(cfg.OpenAI.Model),
		Metrics: metrics.New(),
		Logger:  logger,
	}

	a.Embedder, err = newEmbedder(cfg, a.Tokens, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	pipeline := indexer.NewPipeline(store, a.Chunker, a.Embedder, a.Metrics, logger)
	search := retrieval.NewService(store, a.Chunker, a.Embedder, retrieval.Config{
		DefaultLimit:  cfg.Retrieval.DefaultLimit,
		MaxLimit:      cfg.Retrieval.MaxLimit,
		MaxQueryChars: cfg.Retrieval.MaxQueryChars,
	}, a.Metrics, logger)
	a.Knowledge = knowledge.NewService(store, pipeline, search, logger)

	logger.Debug("Knowledge base ready",
		"backend", cfg.Storage.Backend,
		"model", cfg.OpenAI.Model,
		"embeddings", a.Embedder != nil)
	return a, nil
}

func newEmbedder(cfg *config.Config, tokens *embedding.TokenCounter, logger *slog.Logger) (*embedding.Embedder, error) {
	client, err := embedding.NewClient(embedding.ClientConfig{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.Model,
		Dimensions: cfg.OpenAI.Dimensions,
		Timeout:    cfg.OpenAI.Timeout,
	})
	if errors.Is(err, embedding.ErrMissingAPIKey) {
		logger.Warn("OPENAI_API_KEY is not set; ingestion and search are disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	return embedding.NewEmbedder(client, embedding.Config{
		GroupSize:       cfg.Embedding.GroupSize,
		GroupDelay:      cfg.Embedding.GroupDelay,
		MaxInputChars:   cfg.Embedding.MaxInputChars,
		CacheSize:       cfg.Embedding.CacheSize,
		RetryMaxElapsed: cfg.Embedding.RetryMaxElapsed,
	}, tokens, logger)
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
