// Package knowledge is the caller-facing surface of the knowledge base:
// ingestion, search and the bookkeeping views over a user's documents.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bull/knowledge-rag/internal/indexer"
	"github.com/bull/knowledge-rag/internal/loader"
	"github.com/bull/knowledge-rag/internal/retrieval"
	"github.com/bull/knowledge-rag/internal/storage"
)

// Category and sources of documents that do not come from an uploaded file.
// Uploaded files are categorised by the loader.
const (
	CategoryManual = "manual_input"

	SourceDashboard = "dashboard_input"
	SourceSetup     = "setup_script"
)

// QueueLimit is the maximum number of records ProcessingQueue returns.
const QueueLimit = 10

// ErrNotFound is returned for documents that do not exist or belong to
// another user.
var ErrNotFound = errors.New("document not found")

// Stats summarises a user's knowledge base.
type Stats struct {
	TotalDocuments  int            `json:"totalDocuments"`
	TotalChunks     int            `json:"totalChunks"`
	TotalEmbeddings int            `json:"totalEmbeddings"`
	TotalTokens     int            `json:"totalTokens"`
	Categories      map[string]int `json:"categories"`
}

// Service ties the ingestion pipeline and the retrieval service to one store.
type Service struct {
	store     storage.Store
	pipeline  *indexer.Pipeline
	retrieval *retrieval.Service
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(store storage.Store, pipeline *indexer.Pipeline, search *retrieval.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		pipeline:  pipeline,
		retrieval: search,
		logger:    logger,
	}
}

// IngestDocument ingests one document. See indexer.Pipeline.IngestDocument.
func (s *Service) IngestDocument(ctx context.Context, req indexer.IngestRequest) *indexer.IngestResult {
	return s.pipeline.IngestDocument(ctx, req)
}

// IngestText ingests text typed in by a user.
func (s *Service) IngestText(ctx context.Context, userID, title, content string) *indexer.IngestResult {
	return s.pipeline.IngestDocument(ctx, indexer.IngestRequest{
		UserID:   userID,
		Title:    title,
		Content:  content,
		Category: CategoryManual,
		Source:   SourceDashboard,
	})
}

// IngestFile ingests a loaded file under its own category and source.
func (s *Service) IngestFile(ctx context.Context, userID string, f *loader.File) *indexer.IngestResult {
	return s.pipeline.IngestDocument(ctx, indexer.IngestRequest{
		UserID:   userID,
		Title:    f.Title,
		Content:  f.Content,
		Category: f.Category,
		Source:   f.Source,
	})
}

// Seed ingests a file as part of a bulk setup. category overrides the
// loader's when non-empty.
func (s *Service) Seed(ctx context.Context, userID, category string, f *loader.File) *indexer.IngestResult {
	if category == "" {
		category = f.Category
	}
	return s.pipeline.IngestDocument(ctx, indexer.IngestRequest{
		UserID:   userID,
		Title:    f.Title,
		Content:  f.Content,
		Category: category,
		Source:   SourceSetup,
	})
}

// Search returns the user's chunks most similar to query. It never fails.
func (s *Service) Search(ctx context.Context, req retrieval.Request) []retrieval.Result {
	return s.retrieval.Search(ctx, req)
}

// ListDocuments returns the user's documents newest first, optionally
// restricted to one category.
func (s *Service) ListDocuments(ctx context.Context, userID, category string) ([]*storage.Document, error) {
	docs, err := s.store.ListDocuments(ctx, userID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Categories returns the distinct categories of the user's documents,
// sorted.
func (s *Service) Categories(ctx context.Context, userID string) ([]string, error) {
	docs, err := s.ListDocuments(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	categories := []string{}
	for _, d := range docs {
		if _, ok := seen[d.Category]; ok {
			continue
		}
		seen[d.Category] = struct{}{}
		categories = append(categories, d.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

// DeleteDocument deletes one of the user's documents with all its chunks.
// A document owned by someone else is reported as ErrNotFound.
func (s *Service) DeleteDocument(ctx context.Context, userID, documentID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, storage.ErrDocumentNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if doc.UserID != userID {
		return ErrNotFound
	}

	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.logger.Info("Deleted document", "document_id", documentID, "user_id", userID)
	return nil
}

// Stats returns document, chunk and token totals for the user.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	docs, err := s.ListDocuments(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.ChunkStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute chunk stats: %w", err)
	}

	stats := &Stats{
		TotalDocuments:  len(docs),
		TotalChunks:     chunks.Chunks,
		TotalEmbeddings: chunks.Embeddings,
		TotalTokens:     chunks.TotalTokens,
		Categories:      make(map[string]int),
	}
	for _, d := range docs {
		stats.Categories[d.Category]++
	}
	return stats, nil
}

// ProcessingQueue returns the user's unfinished processing records, newest
// first, at most QueueLimit of them.
func (s *Service) ProcessingQueue(ctx context.Context, userID string) ([]*storage.ProcessingStatus, error) {
	records, err := s.store.ListStatuses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing status: %w", err)
	}
	queue := make([]*storage.ProcessingStatus, 0, min(len(records), QueueLimit))
	for _, r := range records {
		if r.Status == storage.StatusCompleted {
			continue
		}
		queue = append(queue, r)
		if len(queue) == QueueLimit {
			break
		}
	}
	return queue, nil
}

// Health reports whether the store is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}
