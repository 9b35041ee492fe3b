// Package index provides the per-search in-memory vector index. Indexes
// are cheap to build and are discarded with the search session, so there
// is no persistence layer.
package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrDimensionMismatch rejects vectors whose length differs from the
// index dimensionality. Mixed-model vectors are meaningless to compare.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is a single search result: the stored id and its cosine similarity
// to the query in [-1, 1].
type Hit struct {
	ID         string
	Similarity float64
}

type entry struct {
	id   string
	vec  []float64
	norm float64
}

// CosineIndex is a flat cosine-similarity index. All vectors must share
// the dimensionality fixed at construction. Safe for concurrent use.
type CosineIndex struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
}

// NewCosineIndex creates an empty index for vectors of length dim.
func NewCosineIndex(dim int) (*CosineIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	return &CosineIndex{dim: dim}, nil
}

// Dim returns the index dimensionality.
func (ix *CosineIndex) Dim() int {
	return ix.dim
}

// Len returns the number of stored vectors.
func (ix *CosineIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Add stores a vector under id. A duplicate id replaces the previous
// vector. Zero vectors are accepted; they score 0 against any query.
func (ix *CosineIndex) Add(id string, vec []float64) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("%w: got %d, index holds %d", ErrDimensionMismatch, len(vec), ix.dim)
	}
	stored := make([]float64, len(vec))
	copy(stored, vec)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i := range ix.entries {
		if ix.entries[i].id == id {
			ix.entries[i].vec = stored
			ix.entries[i].norm = vectorNorm(stored)
			return nil
		}
	}
	ix.entries = append(ix.entries, entry{id: id, vec: stored, norm: vectorNorm(stored)})
	return nil
}

// Search returns the min(k, Len) stored vectors most similar to query,
// ordered by similarity descending with ties broken by id ascending.
func (ix *CosineIndex) Search(query []float64, k int) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d, index holds %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	qNorm := vectorNorm(query)

	ix.mu.RLock()
	hits := make([]Hit, 0, len(ix.entries))
	for _, e := range ix.entries {
		hits = append(hits, Hit{ID: e.id, Similarity: cosine(query, qNorm, e.vec, e.norm)})
	}
	ix.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// SimilarityToPercent maps cosine similarity in [-1, 1] onto [0, 100].
func SimilarityToPercent(cos float64) float64 {
	pct := 100 * (cos + 1) / 2
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func cosine(a []float64, aNorm float64, b []float64, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	cos := dot / (aNorm * bNorm)
	// Guard against float drift outside the valid range.
	if cos > 1 {
		return 1
	}
	if cos < -1 {
		return -1
	}
	return cos
}

func vectorNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
