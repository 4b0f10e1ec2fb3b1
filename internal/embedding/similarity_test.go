package embedding

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"opposite", []float32{1, 2}, []float32{-1, -2}, -1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func TestCosineSimilarity_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		a := randomVector(rng, 16)
		b := randomVector(rng, 16)

		self, err := CosineSimilarity(a, a)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, self, 1e-6)

		ab, err := CosineSimilarity(a, b)
		require.NoError(t, err)
		ba, err := CosineSimilarity(b, a)
		require.NoError(t, err)
		assert.Equal(t, ab, ba)
		assert.GreaterOrEqual(t, ab, -1.0-1e-9)
		assert.LessOrEqual(t, ab, 1.0+1e-9)
	}
}

func TestTopK(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{ID: "orthogonal", Vector: []float32{0, 1}},
		{ID: "same", Vector: []float32{1, 0}},
		{ID: "diagonal", Vector: []float32{1, 1}},
		{ID: "opposite", Vector: []float32{-1, 0}},
	}

	ranked, err := TopK(query, candidates, 3)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "same", ranked[0].ID)
	assert.Equal(t, "diagonal", ranked[1].ID)
	assert.Equal(t, "orthogonal", ranked[2].ID)
	assert.InDelta(t, 1.0, ranked[0].Similarity, 1e-9)
}

func TestTopK_StableTies(t *testing.T) {
	candidates := []Candidate{
		{ID: "first", Vector: []float32{0, 1}},
		{ID: "second", Vector: []float32{0, 2}},
		{ID: "third", Vector: []float32{0, 3}},
	}
	ranked, err := TopK([]float32{1, 0}, candidates, 10)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}

func TestTopK_LengthAndOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	query := randomVector(rng, 8)

	for _, n := range []int{0, 1, 5, 30} {
		candidates := make([]Candidate, n)
		for i := range candidates {
			candidates[i] = Candidate{ID: fmt.Sprintf("c%d", i), Vector: randomVector(rng, 8)}
		}
		for _, k := range []int{1, 5, 20, 50} {
			t.Run(fmt.Sprintf("n%d_k%d", n, k), func(t *testing.T) {
				ranked, err := TopK(query, candidates, k)
				require.NoError(t, err)
				assert.Len(t, ranked, min(k, n, MaxTopK))
				for i := 1; i < len(ranked); i++ {
					assert.GreaterOrEqual(t, ranked[i-1].Similarity, ranked[i].Similarity)
				}
			})
		}
	}
}

func TestTopK_NonPositiveK(t *testing.T) {
	ranked, err := TopK([]float32{1}, []Candidate{{ID: "a", Vector: []float32{1}}}, 0)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestTopK_DimensionMismatch(t *testing.T) {
	_, err := TopK([]float32{1, 0}, []Candidate{{ID: "bad", Vector: []float32{1}}}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
