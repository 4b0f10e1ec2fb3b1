// Package retrieval answers queries with the stored chunks most similar to
// them. Search never fails: any internal error degrades to an empty result
// so that a conversation can continue without retrieved context.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bull/knowledge-rag/internal/chunker"
	"github.com/bull/knowledge-rag/internal/embedding"
	"github.com/bull/knowledge-rag/internal/metrics"
	"github.com/bull/knowledge-rag/internal/storage"
)

const (
	DefaultLimit         = 5
	DefaultMaxQueryChars = 1000
)

var ErrEmptyQuery = errors.New("query is empty")

// Store is the storage the service reads from.
type Store interface {
	ListDocuments(ctx context.Context, userID, category string) ([]*storage.Document, error)
	ListChunkEmbeddings(ctx context.Context, userID string, documentIDs []string) ([]storage.ChunkEmbedding, error)
	GetChunk(ctx context.Context, id string) (*storage.Chunk, error)
}

// Config tunes a Service. Zero values select the defaults.
type Config struct {
	DefaultLimit  int
	MaxLimit      int // capped at embedding.MaxTopK
	MaxQueryChars int
}

// Request is one search.
type Request struct {
	UserID   string
	Query    string
	Category string // empty searches every category
	Limit    int    // <= 0 selects the default
}

// Result is a stored chunk with its similarity to the query.
type Result struct {
	Chunk      *storage.Chunk
	Similarity float64
}

// Service runs searches.
type Service struct {
	store    Store
	chunker  *chunker.Chunker
	embedder *embedding.Embedder
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService creates a Service. embedder may be nil, in which case every
// search returns no results. m may be nil.
func NewService(
	store Store,
	ch *chunker.Chunker,
	embedder *embedding.Embedder,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if ch == nil {
		ch = chunker.New()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 || cfg.MaxLimit > embedding.MaxTopK {
		cfg.MaxLimit = embedding.MaxTopK
	}
	if cfg.MaxQueryChars <= 0 {
		cfg.MaxQueryChars = DefaultMaxQueryChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		chunker:  ch,
		embedder: embedder,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Search returns the chunks of req.UserID most similar to req.Query, in
// descending similarity order. The result is never nil.
func (s *Service) Search(ctx context.Context, req Request) []Result {
	start := time.Now()
	results, err := s.search(ctx, req)
	if err != nil {
		s.logger.Warn("Search failed, returning no results",
			"user_id", req.UserID, "category", req.Category, "error", err)
		results = []Result{}
	}
	s.metrics.ObserveSearch(len(results), time.Since(start))
	return results
}

func (s *Service) search(ctx context.Context, req Request) ([]Result, error) {
	if s.embedder == nil {
		return nil, embedding.ErrMissingAPIKey
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if req.UserID == "" {
		return nil, errors.New("user id is required")
	}
	query = truncate(query, s.cfg.MaxQueryChars)
	limit := s.limit(req.Limit)

	// 1. Embed the query the way chunks were embedded
	queryText := embedding.PrepareText(query, 0)
	if windows := s.chunker.Windows(query, "query"); len(windows) > 0 {
		queryText = windows[0].Content
	}
	qemb, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// 2. Fetch candidates, filtering by category at the document level
	var documentIDs []string
	if req.Category != "" {
		docs, err := s.store.ListDocuments(ctx, req.UserID, req.Category)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		if len(docs) == 0 {
			s.logger.Debug("No documents in category", "user_id", req.UserID, "category", req.Category)
			return []Result{}, nil
		}
		documentIDs = make([]string, len(docs))
		for i, d := range docs {
			documentIDs[i] = d.ID
		}
	}

	stored, err := s.store.ListChunkEmbeddings(ctx, req.UserID, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk embeddings: %w", err)
	}

	candidates := make([]embedding.Candidate, 0, len(stored))
	skipped := 0
	for _, ce := range stored {
		if len(ce.Embedding) != len(qemb.Vector) {
			skipped++
			continue
		}
		candidates = append(candidates, embedding.Candidate{ID: ce.ChunkID, Vector: ce.Embedding})
	}
	if skipped > 0 {
		s.logger.Warn("Skipped chunks embedded with a different dimension",
			"user_id", req.UserID, "skipped", skipped, "query_dimension", len(qemb.Vector))
	}
	if len(candidates) == 0 {
		s.logger.Debug("No chunk embeddings to search", "user_id", req.UserID, "category", req.Category)
		return []Result{}, nil
	}

	// 3. Rank
	ranked, err := embedding.TopK(qemb.Vector, candidates, limit)
	if err != nil {
		return nil, err
	}

	// 4. Hydrate
	results := make([]Result, 0, len(ranked))
	for _, r := range ranked {
		chunk, err := s.store.GetChunk(ctx, r.ID)
		if errors.Is(err, storage.ErrChunkNotFound) {
			s.logger.Warn("Ranked chunk no longer exists", "chunk_id", r.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load chunk %s: %w", r.ID, err)
		}
		results = append(results, Result{Chunk: chunk, Similarity: r.Similarity})
	}

	s.logger.Debug("Search complete",
		"user_id", req.UserID, "candidates", len(candidates), "results", len(results))
	return results, nil
}

func (s *Service) limit(requested int) int {
	if requested <= 0 {
		requested = s.cfg.DefaultLimit
	}
	return min(requested, s.cfg.MaxLimit)
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars])
}
