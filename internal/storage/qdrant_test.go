//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestQdrant creates a store on a throwaway collection. Skips the test
// if Qdrant is not running on localhost:6334.
func setupTestQdrant(t *testing.T, dimension int) *QdrantStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s, err := NewQdrantStore(ctx, QdrantConfig{
		Host:            "localhost",
		Port:            6334,
		Collection:      "test_" + uuid.NewString(),
		VectorDimension: dimension,
	})
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	require.NoError(t, s.EnsureCollection(context.Background()))
	t.Cleanup(func() {
		s.client.DeleteCollection(context.Background(), s.collection)
		s.Close()
	})
	return s
}

func TestQdrantStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return setupTestQdrant(t, 2)
	})
}

func TestQdrantStore_EnsureCollectionIdempotent(t *testing.T) {
	s := setupTestQdrant(t, 2)
	require.NoError(t, s.EnsureCollection(context.Background()))
}

func TestQdrantStore_DimensionMismatch(t *testing.T) {
	s := setupTestQdrant(t, 3)
	ctx := context.Background()

	require.NoError(t, s.InsertDocument(ctx, &Document{ID: uuid.NewString(), UserID: "u"}))
	err := s.InsertChunk(ctx, &Chunk{ID: "x_chunk_0", DocumentID: "x", UserID: "u", Embedding: []float32{1, 2}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPointID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id).GetUuid())

	a := pointID("doc_chunk_1").GetUuid()
	b := pointID("doc_chunk_1").GetUuid()
	c := pointID("doc_chunk_2").GetUuid()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
