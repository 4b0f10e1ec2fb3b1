package indexer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/knowledge-rag/internal/chunker"
	"github.com/bull/knowledge-rag/internal/embedding"
	"github.com/bull/knowledge-rag/internal/metrics"
	"github.com/bull/knowledge-rag/internal/storage"
)

const threeSections = `# Alpha
The alpha section talks about onboarding new customers and their first invoices.

# Beta
The beta section describes refunds, partial refunds and how long they take.

# Gamma
The gamma section lists the support channels and their opening hours.`

// stubProvider embeds every input as a fixed vector, failing inputs for
// which fail returns an error.
type stubProvider struct {
	fail func(input string) error
}

func (stubProvider) Model() string { return "stub-model" }

func (s stubProvider) CreateEmbedding(_ context.Context, input string) (*embedding.Embedding, error) {
	if s.fail != nil {
		if err := s.fail(input); err != nil {
			return nil, err
		}
	}
	return &embedding.Embedding{Vector: []float32{1, 0, 0}, Model: "stub-model", TokenCount: 5}, nil
}

func rejectPrefix(prefixes ...string) func(string) error {
	return func(input string) error {
		for _, p := range prefixes {
			if strings.HasPrefix(input, p) {
				return &embedding.ProviderError{StatusCode: http.StatusBadRequest, Err: errors.New("rejected")}
			}
		}
		return nil
	}
}

func newTestPipeline(t *testing.T, store Store, provider embedding.Provider) *Pipeline {
	t.Helper()
	var emb *embedding.Embedder
	if provider != nil {
		var err error
		emb, err = embedding.NewEmbedder(provider, embedding.Config{GroupDelay: -1}, nil, nil)
		require.NoError(t, err)
	}
	ch := chunker.New(chunker.WithMinChunkSize(0), chunker.WithMinContentLength(0))
	return NewPipeline(store, ch, emb, metrics.New(), nil)
}

func request(content string) IngestRequest {
	return IngestRequest{
		UserID:   "alice",
		Title:    "Handbook",
		Content:  content,
		Category: "manual_input",
		Source:   "dashboard_input",
	}
}

func TestIngestDocument(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestPipeline(t, store, stubProvider{})

	res := p.IngestDocument(ctx, request(threeSections))

	require.True(t, res.Success, res.Error)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Error)
	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, 3, res.ChunksProcessed)
	assert.Equal(t, 3, res.ChunksSaved)
	assert.Equal(t, 15, res.TotalTokens)

	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Handbook", doc.Title)
	assert.Equal(t, "manual_input", doc.Category)
	assert.Equal(t, "dashboard_input", doc.Source)

	chunk, err := store.GetChunk(ctx, storage.ChunkID(res.DocumentID, 1))
	require.NoError(t, err)
	assert.Equal(t, "alice", chunk.UserID)
	assert.Equal(t, "Beta", chunk.Metadata.Section)
	assert.Equal(t, 1, chunk.Metadata.ChunkIndex)
	assert.Equal(t, "stub-model", chunk.Model)
	assert.True(t, strings.HasPrefix(chunk.Content, "Beta\n\n"))

	statuses, err := store.ListStatuses(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, res.StatusID, statuses[0].ID)
	assert.Equal(t, res.DocumentID, statuses[0].DocumentID)
	assert.Equal(t, storage.OperationEmbedding, statuses[0].Operation)
	assert.Equal(t, storage.StatusCompleted, statuses[0].Status)
	assert.Equal(t, 100, statuses[0].Progress)
}

func TestIngestDocument_DefaultTitle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestPipeline(t, store, stubProvider{})

	req := request(threeSections)
	req.Title = "  "
	res := p.IngestDocument(ctx, req)
	require.True(t, res.Success)

	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, doc.Title)
}

func TestIngestDocument_EmptyContent(t *testing.T) {
	for _, content := range []string{"", "   \n\t "} {
		ctx := context.Background()
		store := storage.NewMemoryStore()
		p := newTestPipeline(t, store, stubProvider{})

		res := p.IngestDocument(ctx, request(content))

		assert.False(t, res.Success)
		assert.Equal(t, 0, res.ChunksProcessed)
		assert.Equal(t, 0, res.ChunksSaved)
		assert.Empty(t, res.DocumentID)
		assert.ErrorIs(t, res.Err, ErrEmptyContent)
		assert.Contains(t, res.Error, "empty")
		assert.Contains(t, res.Error, "content")

		docs, err := store.ListDocuments(ctx, "alice", "")
		require.NoError(t, err)
		assert.Empty(t, docs)
		embs, err := store.ListChunkEmbeddings(ctx, "alice", nil)
		require.NoError(t, err)
		assert.Empty(t, embs)
		statuses, err := store.ListStatuses(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, statuses)
	}
}

func TestIngestDocument_MissingUser(t *testing.T) {
	p := newTestPipeline(t, storage.NewMemoryStore(), stubProvider{})
	req := request(threeSections)
	req.UserID = ""

	res := p.IngestDocument(context.Background(), req)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrMissingUser)
}

func TestIngestDocument_NoEmbedder(t *testing.T) {
	store := storage.NewMemoryStore()
	p := newTestPipeline(t, store, nil)

	res := p.IngestDocument(context.Background(), request(threeSections))
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrEmbedderNotConfigured)

	docs, err := store.ListDocuments(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngestDocument_NoChunks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	emb, err := embedding.NewEmbedder(stubProvider{}, embedding.Config{GroupDelay: -1}, nil, nil)
	require.NoError(t, err)
	p := NewPipeline(store, chunker.New(), emb, nil, nil)

	res := p.IngestDocument(ctx, request("too short to index"))

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNoChunks)
	assert.Equal(t, "no chunks produced", res.Error)
	assert.NotEmpty(t, res.DocumentID)

	statuses, err := store.ListStatuses(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, storage.StatusFailed, statuses[0].Status)
	assert.Equal(t, storage.OperationChunking, statuses[0].Operation)
	assert.Equal(t, "no chunks produced", statuses[0].Error)
}

func TestIngestDocument_PartialEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestPipeline(t, store, stubProvider{fail: rejectPrefix("Beta")})

	res := p.IngestDocument(ctx, request(threeSections))

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.ChunksProcessed)
	assert.Equal(t, 2, res.ChunksSaved)
	assert.Equal(t, 10, res.TotalTokens)
	assert.Contains(t, res.Error, "some chunks were not saved")
	assert.Contains(t, res.Error, "chunk 2:")
	var perr *embedding.ProviderError
	assert.ErrorAs(t, res.Err, &perr)

	_, err := store.GetChunk(ctx, storage.ChunkID(res.DocumentID, 1))
	assert.ErrorIs(t, err, storage.ErrChunkNotFound)

	statuses, err := store.ListStatuses(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, statuses[0].Status)
}

func TestIngestDocument_EmbeddingFailsEntirely(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestPipeline(t, store, stubProvider{fail: rejectPrefix("Alpha", "Beta", "Gamma")})

	res := p.IngestDocument(ctx, request(threeSections))

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ChunksProcessed)
	assert.Equal(t, 0, res.ChunksSaved)
	assert.True(t, strings.HasPrefix(res.Error, "embedding generation failed: "), res.Error)

	// The document is kept for external cleanup.
	_, err := store.GetDocument(ctx, res.DocumentID)
	assert.NoError(t, err)

	statuses, err := store.ListStatuses(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, statuses[0].Status)
	assert.Equal(t, storage.OperationEmbedding, statuses[0].Operation)
	assert.Equal(t, 50, statuses[0].Progress)
}

// flakyStore fails selected writes on top of a MemoryStore.
type flakyStore struct {
	*storage.MemoryStore
	failChunk  string
	failStatus bool
}

func (s *flakyStore) InsertChunk(ctx context.Context, c *storage.Chunk) error {
	if c.ID == s.failChunk {
		return errors.New("disk full")
	}
	return s.MemoryStore.InsertChunk(ctx, c)
}

func (s *flakyStore) CreateStatus(ctx context.Context, st *storage.ProcessingStatus) error {
	if s.failStatus {
		return errors.New("status table locked")
	}
	return s.MemoryStore.CreateStatus(ctx, st)
}

func TestIngestDocument_ChunkSaveFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	p := newTestPipeline(t, store, stubProvider{})
	p.newID = func() string { return "doc-1" }

	store.failChunk = storage.ChunkID("doc-1", 2)
	res := p.IngestDocument(ctx, request(threeSections))

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.ChunksSaved)
	assert.Contains(t, res.Error, "chunk 3: disk full")
}

func TestIngestDocument_StatusFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(), failStatus: true}
	p := newTestPipeline(t, store, stubProvider{})

	res := p.IngestDocument(ctx, request(threeSections))

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.ChunksSaved)
	assert.Empty(t, res.StatusID)
}
