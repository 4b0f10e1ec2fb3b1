package storage

import (
	"context"
	"fmt"
)

// DocumentStore persists documents. Reads are always scoped by owning user.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *Document) error
	// GetDocument returns ErrDocumentNotFound when id is unknown.
	GetDocument(ctx context.Context, id string) (*Document, error)
	// ListDocuments returns the user's documents newest first. An empty
	// category matches every document.
	ListDocuments(ctx context.Context, userID, category string) ([]*Document, error)
	// DeleteDocument removes the document and all of its chunks. Readers
	// never observe chunks of a deleted document.
	DeleteDocument(ctx context.Context, id string) error
}

// ChunkStore persists chunks and their embeddings.
type ChunkStore interface {
	InsertChunk(ctx context.Context, chunk *Chunk) error
	// GetChunk returns ErrChunkNotFound when id is unknown.
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	// ListChunkEmbeddings returns the user's chunk vectors. A nil
	// documentIDs slice means every document; an empty non-nil slice
	// matches nothing.
	ListChunkEmbeddings(ctx context.Context, userID string, documentIDs []string) ([]ChunkEmbedding, error)
	ChunkStats(ctx context.Context, userID string) (*ChunkStats, error)
}

// StatusStore persists processing status records.
type StatusStore interface {
	CreateStatus(ctx context.Context, status *ProcessingStatus) error
	// UpdateStatus returns ErrStatusNotFound when id is unknown.
	UpdateStatus(ctx context.Context, id string, patch StatusPatch) error
	GetStatus(ctx context.Context, id string) (*ProcessingStatus, error)
	// ListStatuses returns the user's records newest first.
	ListStatuses(ctx context.Context, userID string) ([]*ProcessingStatus, error)
}

// Store is the storage collaborator used by the pipelines.
type Store interface {
	DocumentStore
	ChunkStore
	StatusStore
	Health(ctx context.Context) error
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendQdrant Backend = "qdrant"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend         Backend
	SQLitePath      string
	QdrantHost      string
	QdrantPort      int
	Collection      string
	VectorDimension int
}

// Open creates the Store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite, "":
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case BackendQdrant:
		s, err := NewQdrantStore(ctx, QdrantConfig{
			Host:            opts.QdrantHost,
			Port:            opts.QdrantPort,
			Collection:      opts.Collection,
			VectorDimension: opts.VectorDimension,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureCollection(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

func containsString(set map[string]struct{}, s string) bool {
	_, ok := set[s]
	return ok
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
