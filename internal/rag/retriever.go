package rag

import (
	"context"
	"fmt"
)

// DefaultTopK is the number of matches returned when the caller passes 0.
const DefaultTopK = 5

// Retriever embeds a question with the configured Embedder and searches a
// document's VectorIndex with it.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// defaultTopK is the number of results to return when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever from the given Embedder.
// defaultTopK sets the fallback result count when Retrieve is called with topK=0.
func NewRetriever(embedder Embedder, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Retriever{embedder: embedder, defaultTopK: defaultTopK}, nil
}

// Model returns the identifier of the embedder used for queries.
func (r *Retriever) Model() string { return r.embedder.ModelName() }

// Retrieve embeds query and returns the top-k matches from ix. An index built
// with a different embedding model is rejected before the embedder is called.
func (r *Retriever) Retrieve(ctx context.Context, ix *VectorIndex, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	if model := r.embedder.ModelName(); ix.Model() != model {
		return nil, Errorf(KindConfigurationMismatch,
			"index was built with embedding model %q, configured model is %q", ix.Model(), model)
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, NewError(KindEmbeddingService, "embed query", err)
	}
	if len(embeddings) != 1 {
		return nil, Errorf(KindEmbeddingService, "embedder returned %d vectors for 1 query", len(embeddings))
	}
	if !finite(embeddings[0]) {
		return nil, Errorf(KindEmbeddingService, "query vector has a NaN or infinite component")
	}

	return ix.Search(embeddings[0], topK)
}
