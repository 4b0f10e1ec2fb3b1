package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps every record in process memory. It backs tests and
// the "memory" backend for throwaway sessions.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]*Document
	chunks    map[string]*Chunk
	byDoc     map[string][]string // document id -> chunk ids, insertion order
	statuses  map[string]*ProcessingStatus
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*Document),
		chunks:    make(map[string]*Chunk),
		byDoc:     make(map[string][]string),
		statuses:  make(map[string]*ProcessingStatus),
		now:       time.Now,
	}
}

func (s *MemoryStore) InsertDocument(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; ok {
		return fmt.Errorf("%w: document %s", ErrDuplicateID, doc.ID)
	}
	cp := *doc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.documents[doc.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, userID, category string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*Document
	for _, doc := range s.documents {
		if doc.UserID != userID {
			continue
		}
		if category != "" && doc.Category != category {
			continue
		}
		cp := *doc
		docs = append(docs, &cp)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return ErrDocumentNotFound
	}
	for _, chunkID := range s.byDoc[id] {
		delete(s.chunks, chunkID)
	}
	delete(s.byDoc, id)
	delete(s.documents, id)
	return nil
}

func (s *MemoryStore) InsertChunk(_ context.Context, chunk *Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[chunk.DocumentID]; !ok {
		return fmt.Errorf("%w: chunk %s references %s", ErrDocumentNotFound, chunk.ID, chunk.DocumentID)
	}
	if _, ok := s.chunks[chunk.ID]; ok {
		return fmt.Errorf("%w: chunk %s", ErrDuplicateID, chunk.ID)
	}
	cp := *chunk
	cp.Embedding = append([]float32(nil), chunk.Embedding...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.chunks[chunk.ID] = &cp
	s.byDoc[chunk.DocumentID] = append(s.byDoc[chunk.DocumentID], chunk.ID)
	return nil
}

func (s *MemoryStore) GetChunk(_ context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunk, ok := s.chunks[id]
	if !ok {
		return nil, ErrChunkNotFound
	}
	cp := *chunk
	cp.Embedding = append([]float32(nil), chunk.Embedding...)
	return &cp, nil
}

func (s *MemoryStore) ListChunkEmbeddings(_ context.Context, userID string, documentIDs []string) ([]ChunkEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filter map[string]struct{}
	if documentIDs != nil {
		filter = stringSet(documentIDs)
	}

	// Walk documents in a stable order so ranking ties are reproducible.
	docIDs := make([]string, 0, len(s.byDoc))
	for id := range s.byDoc {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	var out []ChunkEmbedding
	for _, docID := range docIDs {
		if filter != nil && !containsString(filter, docID) {
			continue
		}
		for _, chunkID := range s.byDoc[docID] {
			chunk := s.chunks[chunkID]
			if chunk.UserID != userID || len(chunk.Embedding) == 0 {
				continue
			}
			out = append(out, ChunkEmbedding{
				ChunkID:    chunk.ID,
				DocumentID: chunk.DocumentID,
				Embedding:  append([]float32(nil), chunk.Embedding...),
				Model:      chunk.Model,
			})
		}
	}
	return out, nil
}

func (s *MemoryStore) ChunkStats(_ context.Context, userID string) (*ChunkStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ChunkStats{}
	for _, chunk := range s.chunks {
		if chunk.UserID != userID {
			continue
		}
		stats.Chunks++
		if len(chunk.Embedding) > 0 {
			stats.Embeddings++
		}
		stats.TotalTokens += chunk.TokenCount
	}
	return stats, nil
}

func (s *MemoryStore) CreateStatus(_ context.Context, status *ProcessingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[status.ID]; ok {
		return fmt.Errorf("%w: status %s", ErrDuplicateID, status.ID)
	}
	cp := *status
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	cp.Progress = clampProgress(cp.Progress)
	s.statuses[status.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, patch StatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[id]
	if !ok {
		return ErrStatusNotFound
	}
	patch.Apply(status, s.now())
	return nil
}

func (s *MemoryStore) GetStatus(_ context.Context, id string) (*ProcessingStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[id]
	if !ok {
		return nil, ErrStatusNotFound
	}
	cp := *status
	return &cp, nil
}

func (s *MemoryStore) ListStatuses(_ context.Context, userID string) ([]*ProcessingStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ProcessingStatus
	for _, status := range s.statuses {
		if status.UserID != userID {
			continue
		}
		cp := *status
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
