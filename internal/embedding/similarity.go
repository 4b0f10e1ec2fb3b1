package embedding

import (
	"fmt"
	"math"
	"sort"
)

// MaxTopK caps the number of ranked results regardless of what is asked for.
const MaxTopK = 20

// CosineSimilarity returns the cosine of the angle between a and b. Vectors
// of different length are an error; a zero vector has similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Candidate is a vector to rank against a query.
type Candidate struct {
	ID     string
	Vector []float32
}

// Ranked is a candidate with its similarity to the query.
type Ranked struct {
	ID         string
	Similarity float64
}

// TopK ranks candidates by descending similarity to query and keeps the
// first min(k, MaxTopK). Ties keep candidate order.
func TopK(query []float32, candidates []Candidate, k int) ([]Ranked, error) {
	if k > MaxTopK {
		k = MaxTopK
	}
	if k <= 0 || len(candidates) == 0 {
		return []Ranked{}, nil
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		sim, err := CosineSimilarity(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		ranked[i] = Ranked{ID: c.ID, Similarity: sim}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}
