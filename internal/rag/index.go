package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// DefaultBatchSize is the number of chunks sent to the embedder per call
// when BuildOptions.BatchSize is zero.
const DefaultBatchSize = 32

// entry is one (vector, chunk text) pair. norm caches the vector's L2 norm.
type entry struct {
	text   string
	vector []float32
	norm   float64
}

// VectorIndex is an immutable brute-force cosine similarity index over one
// document's chunks. It is safe for concurrent searches.
type VectorIndex struct {
	// model is the embedding model identifier the vectors came from.
	model string
	// dims is the length of every vector in the index.
	dims int
	// entries are kept in chunk order; Search breaks ties on this order.
	entries []entry
}

// BuildOptions tunes Build.
type BuildOptions struct {
	// BatchSize is the number of chunks embedded per request.
	// Defaults to DefaultBatchSize if zero.
	BatchSize int
}

// Build embeds each chunk exactly once and returns an index stamped with
// emb.ModelName(). Embedding failures, a wrong vector count, or vectors of
// differing length are reported as KindEmbeddingService errors.
func Build(ctx context.Context, chunks []string, emb Embedder, opts *BuildOptions) (*VectorIndex, error) {
	if emb == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	batch := DefaultBatchSize
	if opts != nil && opts.BatchSize > 0 {
		batch = opts.BatchSize
	}

	ix := &VectorIndex{model: emb.ModelName(), entries: make([]entry, 0, len(chunks))}
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		vectors, err := emb.Embed(ctx, chunks[start:end])
		if err != nil {
			return nil, NewError(KindEmbeddingService, "embed chunks", err)
		}
		if len(vectors) != end-start {
			return nil, Errorf(KindEmbeddingService,
				"embedder returned %d vectors for %d chunks", len(vectors), end-start)
		}
		for i, v := range vectors {
			if err := ix.add(chunks[start+i], v); err != nil {
				return nil, err
			}
		}
	}
	return ix, nil
}

// add appends one pair, fixing the index dimension on the first vector.
func (ix *VectorIndex) add(text string, v []float32) error {
	if len(v) == 0 {
		return Errorf(KindEmbeddingService, "empty vector for chunk %d", len(ix.entries))
	}
	if ix.dims == 0 {
		ix.dims = len(v)
	} else if len(v) != ix.dims {
		return Errorf(KindEmbeddingService,
			"vector for chunk %d has %d dimensions, want %d", len(ix.entries), len(v), ix.dims)
	}
	if !finite(v) {
		return Errorf(KindEmbeddingService, "vector for chunk %d has a NaN or infinite component", len(ix.entries))
	}
	ix.entries = append(ix.entries, entry{text: text, vector: v, norm: l2(v)})
	return nil
}

// Model returns the embedding model identifier the index was built with.
func (ix *VectorIndex) Model() string { return ix.model }

// Dimensions returns the vector length, or 0 for an empty index.
func (ix *VectorIndex) Dimensions() int { return ix.dims }

// Len returns the number of chunks in the index.
func (ix *VectorIndex) Len() int { return len(ix.entries) }

// Chunks returns the chunk texts in insertion order.
func (ix *VectorIndex) Chunks() []string {
	out := make([]string, len(ix.entries))
	for i, e := range ix.entries {
		out[i] = e.text
	}
	return out
}

// Passages returns the index contents as passages owned by documentID.
func (ix *VectorIndex) Passages(documentID string) []Passage {
	out := make([]Passage, len(ix.entries))
	for i, e := range ix.entries {
		out[i] = Passage{DocumentID: documentID, Position: i, Content: e.text, Vector: e.vector}
	}
	return out
}

// Search returns the min(k, Len()) chunks most similar to query, ordered by
// descending cosine similarity. Equal scores keep insertion order. An empty
// index or k <= 0 yields an empty result. A query whose length differs from
// the index dimension is a KindConfigurationMismatch error.
func (ix *VectorIndex) Search(query []float32, k int) ([]Match, error) {
	if k <= 0 || len(ix.entries) == 0 {
		return []Match{}, nil
	}
	if len(query) != ix.dims {
		return nil, Errorf(KindConfigurationMismatch,
			"query has %d dimensions, index %q has %d", len(query), ix.model, ix.dims)
	}

	qn := l2(query)
	matches := make([]Match, len(ix.entries))
	for i, e := range ix.entries {
		matches[i] = Match{Text: e.text, Score: cosine(query, qn, e.vector, e.norm), Position: i}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// cosine returns the cosine similarity of a and b given their norms.
// A zero vector has similarity 0 with everything.
func cosine(a []float32, an float64, b []float32, bn float64) float32 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (an * bn))
}

// finite reports whether every component of v is a finite number. Search
// relies on it: NaN scores have no order.
func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// l2 returns the Euclidean norm of v.
func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
