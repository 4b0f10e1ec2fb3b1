package knowledge

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/knowledge-rag/internal/chunker"
	"github.com/bull/knowledge-rag/internal/embedding"
	"github.com/bull/knowledge-rag/internal/indexer"
	"github.com/bull/knowledge-rag/internal/loader"
	"github.com/bull/knowledge-rag/internal/retrieval"
	"github.com/bull/knowledge-rag/internal/storage"
)

// keywordProvider embeds text as counts of a few keywords.
type keywordProvider struct{}

func (keywordProvider) Model() string { return "keywords" }

func (keywordProvider) CreateEmbedding(_ context.Context, input string) (*embedding.Embedding, error) {
	lower := strings.ToLower(input)
	return &embedding.Embedding{
		Vector: []float32{
			float32(strings.Count(lower, "refund")),
			float32(strings.Count(lower, "support")),
			0.1,
		},
		TokenCount: len(strings.Fields(input)),
	}, nil
}

func newTestService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	emb, err := embedding.NewEmbedder(keywordProvider{}, embedding.Config{GroupDelay: -1}, nil, nil)
	require.NoError(t, err)
	ch := chunker.New(chunker.WithMinChunkSize(0), chunker.WithMinContentLength(0))

	pipeline := indexer.NewPipeline(store, ch, emb, nil, nil)
	search := retrieval.NewService(store, ch, emb, retrieval.Config{}, nil, nil)
	return NewService(store, pipeline, search, nil), store
}

func ingest(t *testing.T, svc *Service, user, title, category, content string) *indexer.IngestResult {
	t.Helper()
	res := svc.IngestDocument(context.Background(), indexer.IngestRequest{
		UserID: user, Title: title, Content: content, Category: category,
	})
	require.True(t, res.Success, res.Error)
	return res
}

func TestIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	refunds := ingest(t, svc, "alice", "Refunds", CategoryManual,
		"Refunds are issued within five days. A refund covers the full price.")
	ingest(t, svc, "alice", "Support", loader.CategoryPDF,
		"Support is available on weekdays. Contact support by email.")

	results := svc.Search(ctx, retrieval.Request{UserID: "alice", Query: "how long does a refund take"})
	require.NotEmpty(t, results)
	assert.Equal(t, refunds.DocumentID, results[0].Chunk.DocumentID)

	results = svc.Search(ctx, retrieval.Request{UserID: "alice", Query: "refund", Category: loader.CategoryPDF})
	require.Len(t, results, 1)
	assert.NotEqual(t, refunds.DocumentID, results[0].Chunk.DocumentID)

	assert.Empty(t, svc.Search(ctx, retrieval.Request{UserID: "bob", Query: "refund"}))
}

func TestIngestText(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	res := svc.IngestText(ctx, "alice", "Note", "Our support line opens at nine in the morning.")
	require.True(t, res.Success)

	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, CategoryManual, doc.Category)
	assert.Equal(t, SourceDashboard, doc.Source)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	cats, err := svc.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{}, cats)

	ingest(t, svc, "alice", "a", loader.CategoryPDF, "Refund rules for the spring catalogue.")
	ingest(t, svc, "alice", "b", CategoryManual, "Support rules for the spring catalogue.")
	ingest(t, svc, "alice", "c", loader.CategoryPDF, "Refund rules for the autumn catalogue.")
	ingest(t, svc, "bob", "d", "faq", "Support rules for bob only.")

	cats, err = svc.Categories(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{CategoryManual, loader.CategoryPDF}, cats)
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	res := ingest(t, svc, "alice", "Refunds", CategoryManual, "Refunds are issued within five days of the request.")

	assert.ErrorIs(t, svc.DeleteDocument(ctx, "bob", res.DocumentID), ErrNotFound)
	_, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err, "another user's delete must not remove the document")

	require.NoError(t, svc.DeleteDocument(ctx, "alice", res.DocumentID))

	_, err = store.GetDocument(ctx, res.DocumentID)
	assert.ErrorIs(t, err, storage.ErrDocumentNotFound)
	embs, err := store.ListChunkEmbeddings(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Empty(t, embs)
	assert.Empty(t, svc.Search(ctx, retrieval.Request{UserID: "alice", Query: "refund"}))

	assert.ErrorIs(t, svc.DeleteDocument(ctx, "alice", res.DocumentID), ErrNotFound)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	stats, err := svc.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &Stats{Categories: map[string]int{}}, stats)

	a := ingest(t, svc, "alice", "a", loader.CategoryPDF, "Refund rules for the spring catalogue.")
	b := ingest(t, svc, "alice", "b", CategoryManual, "Support rules for the spring catalogue.")
	c := ingest(t, svc, "alice", "c", loader.CategoryPDF, "Refund rules for the autumn catalogue.")
	ingest(t, svc, "bob", "d", "faq", "Support rules for bob only.")

	stats, err = svc.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 3, stats.TotalEmbeddings)
	assert.Equal(t, a.TotalTokens+b.TotalTokens+c.TotalTokens, stats.TotalTokens)
	assert.Equal(t, map[string]int{loader.CategoryPDF: 2, CategoryManual: 1}, stats.Categories)
}

func TestProcessingQueue(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 14; i++ {
		status := storage.StatusProcessing
		switch {
		case i%3 == 0:
			status = storage.StatusCompleted
		case i%3 == 1:
			status = storage.StatusFailed
		}
		require.NoError(t, store.CreateStatus(ctx, &storage.ProcessingStatus{
			ID:        fmt.Sprintf("s%02d", i),
			UserID:    "alice",
			Operation: storage.OperationEmbedding,
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.CreateStatus(ctx, &storage.ProcessingStatus{
		ID: "bob", UserID: "bob", Status: storage.StatusFailed, CreatedAt: base,
	}))

	queue, err := svc.ProcessingQueue(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, queue, 9)
	assert.Equal(t, "s13", queue[0].ID)
	for i, r := range queue {
		assert.NotEqual(t, storage.StatusCompleted, r.Status)
		assert.Equal(t, "alice", r.UserID)
		if i > 0 {
			assert.True(t, r.CreatedAt.Before(queue[i-1].CreatedAt))
		}
	}

	for i := 14; i < 20; i++ {
		require.NoError(t, store.CreateStatus(ctx, &storage.ProcessingStatus{
			ID: fmt.Sprintf("s%02d", i), UserID: "alice", Status: storage.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	queue, err = svc.ProcessingQueue(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, queue, QueueLimit)
	assert.Equal(t, "s19", queue[0].ID)
}

func TestIngestFileAndSeed(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	l := loader.New()

	pdfLike := &loader.File{
		Name: "manual.pdf", Title: "manual", Content: "Refunds are processed by the billing team.",
		Category: loader.CategoryPDF, Source: "uploaded_pdf_manual.pdf",
	}
	res := svc.IngestFile(ctx, "alice", pdfLike)
	require.True(t, res.Success, res.Error)
	doc, err := store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, loader.CategoryPDF, doc.Category)
	assert.Equal(t, "uploaded_pdf_manual.pdf", doc.Source)

	txt, err := l.Parse("hours.txt", []byte("Support opens at nine and closes at five."))
	require.NoError(t, err)
	res = svc.Seed(ctx, "alice", "faq", txt)
	require.True(t, res.Success, res.Error)
	doc, err = store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "faq", doc.Category)
	assert.Equal(t, SourceSetup, doc.Source)
	assert.Equal(t, "hours", doc.Title)

	res = svc.Seed(ctx, "alice", "", txt)
	require.True(t, res.Success, res.Error)
	doc, err = store.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, loader.CategoryFile, doc.Category)
}
