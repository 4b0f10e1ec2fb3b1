package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/knowledge-rag/internal/chunker"
	"github.com/bull/knowledge-rag/internal/embedding"
	"github.com/bull/knowledge-rag/internal/metrics"
	"github.com/bull/knowledge-rag/internal/storage"
)

var (
	// ErrEmptyContent is returned for documents with no non-whitespace text.
	ErrEmptyContent = errors.New("document content is empty")

	// ErrMissingUser is returned when a request has no owning user.
	ErrMissingUser = errors.New("user id is required")

	// ErrNoChunks is returned when chunking yields nothing to embed.
	ErrNoChunks = errors.New("no chunks produced")

	// ErrEmbedderNotConfigured is returned when the pipeline has no embedder,
	// usually because no provider API key was configured.
	ErrEmbedderNotConfigured = errors.New("embedding provider not configured")
)

// DefaultTitle is used for documents ingested without a title.
const DefaultTitle = "Untitled document"

// Store is the storage the pipeline writes to.
type Store interface {
	storage.DocumentStore
	storage.ChunkStore
	storage.StatusStore
}

// IngestRequest describes one document to ingest.
type IngestRequest struct {
	UserID   string
	Title    string
	Content  string
	Category string
	Source   string
	IsPublic bool
}

// IngestResult reports what an ingestion did. A failed ingestion is
// reported here rather than as an error so that partial work stays visible.
type IngestResult struct {
	DocumentID      string `json:"documentId"`
	StatusID        string `json:"statusId,omitempty"`
	ChunksProcessed int    `json:"chunksProcessed"`
	ChunksSaved     int    `json:"chunksSaved"`
	TotalTokens     int    `json:"totalTokens"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`

	// Err is the underlying error for errors.Is checks, nil on full success.
	Err error `json:"-"`
}

// Pipeline ingests documents: persist the document, chunk it, embed the
// chunks in batches and persist every chunk that got an embedding.
type Pipeline struct {
	store    Store
	chunker  *chunker.Chunker
	embedder *embedding.Embedder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewPipeline creates a pipeline. embedder may be nil, in which case every
// ingestion fails with ErrEmbedderNotConfigured. m may be nil.
func NewPipeline(
	store Store,
	ch *chunker.Chunker,
	embedder *embedding.Embedder,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Pipeline {
	if ch == nil {
		ch = chunker.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    store,
		chunker:  ch,
		embedder: embedder,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// IngestDocument runs the ingestion of req. It never returns an error;
// failures are reported through IngestResult.
func (p *Pipeline) IngestDocument(ctx context.Context, req IngestRequest) *IngestResult {
	start := p.now()
	result := &IngestResult{}
	defer func() {
		p.metrics.ObserveIngest(metrics.IngestObservation{
			Success:           result.Success,
			ChunksSaved:       result.ChunksSaved,
			EmbeddingFailures: result.ChunksProcessed - result.ChunksSaved,
			Tokens:            result.TotalTokens,
			Duration:          p.now().Sub(start),
		})
	}()

	if p.embedder == nil {
		return result.fail(ErrEmbedderNotConfigured)
	}
	if strings.TrimSpace(req.Content) == "" {
		return result.fail(ErrEmptyContent)
	}
	if req.UserID == "" {
		return result.fail(ErrMissingUser)
	}

	status := p.startStatus(ctx, req.UserID)
	result.StatusID = status.id

	// 1. Persist document
	doc := &storage.Document{
		ID:        p.newID(),
		UserID:    req.UserID,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		Category:  req.Category,
		Source:    req.Source,
		IsPublic:  req.IsPublic,
		CreatedAt: p.now(),
	}
	if doc.Title == "" {
		doc.Title = DefaultTitle
	}
	if err := p.store.InsertDocument(ctx, doc); err != nil {
		err = fmt.Errorf("failed to save document: %w", err)
		status.fail(ctx, err)
		return result.fail(err)
	}
	result.DocumentID = doc.ID
	status.advance(ctx, storage.OperationChunking, 25, doc.ID)

	// 2. Chunk
	chunks := p.chunker.Chunk(req.Content, doc.ID)
	if len(chunks) == 0 {
		status.fail(ctx, ErrNoChunks)
		return result.fail(ErrNoChunks)
	}
	result.ChunksProcessed = len(chunks)
	p.logger.Debug("Chunked document", "document_id", doc.ID, "chunks", len(chunks))
	status.advance(ctx, storage.OperationEmbedding, 50, "")

	// 3. Embed
	batch := p.embedder.EmbedBatch(ctx, chunks)
	if batch.Succeeded() == 0 {
		err := fmt.Errorf("embedding generation failed: %w", batch.FirstError())
		status.fail(ctx, err)
		return result.fail(err)
	}

	// 4. Persist chunks that have an embedding
	failures := make(map[string]error, len(batch.Failures))
	for _, f := range batch.Failures {
		failures[f.ChunkID] = f.Err
	}

	var errs []string
	var joined []error
	for _, ch := range chunks {
		emb, ok := batch.Embeddings[ch.ID]
		if !ok {
			err := failures[ch.ID]
			if err == nil {
				err = errors.New("embedding not found")
			}
			errs = append(errs, fmt.Sprintf("chunk %d: %v", ch.Index+1, err))
			joined = append(joined, err)
			continue
		}

		record := &storage.Chunk{
			ID:         ch.ID,
			DocumentID: doc.ID,
			UserID:     req.UserID,
			Content:    ch.Content,
			Embedding:  emb.Vector,
			Metadata: storage.ChunkMetadata{
				DocumentID: doc.ID,
				ChunkIndex: ch.Index,
				Section:    ch.Section,
				WordCount:  ch.WordCount,
			},
			Model:      emb.Model,
			TokenCount: emb.TokenCount,
			CreatedAt:  p.now(),
		}
		if err := p.store.InsertChunk(ctx, record); err != nil {
			p.logger.Warn("Failed to save chunk", "chunk_id", ch.ID, "error", err)
			errs = append(errs, fmt.Sprintf("chunk %d: %v", ch.Index+1, err))
			joined = append(joined, err)
			continue
		}
		result.ChunksSaved++
		result.TotalTokens += emb.TokenCount
	}

	result.Success = result.ChunksSaved > 0
	if len(errs) > 0 {
		result.Error = "some chunks were not saved: " + strings.Join(errs, "; ")
		result.Err = errors.Join(joined...)
	}

	if result.Success {
		status.complete(ctx)
	} else {
		status.fail(ctx, errors.New(result.Error))
	}

	p.logger.Info("Ingested document",
		"document_id", doc.ID,
		"chunks", result.ChunksProcessed,
		"chunks_saved", result.ChunksSaved,
		"tokens", result.TotalTokens,
		"duration", p.now().Sub(start),
	)
	return result
}

func (r *IngestResult) fail(err error) *IngestResult {
	r.Success = false
	r.Err = err
	r.Error = err.Error()
	return r
}
