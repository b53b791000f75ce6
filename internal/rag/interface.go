// Package rag holds the retrieval core: the per-document vector index, its
// binary encoding and persistence, the embedder and storage contracts it
// depends on, and the error kinds shared by the rest of docqa.
package rag

import (
	"context"
	"time"
)

// Document is the catalog record of an ingested file. It is immutable once
// published; re-ingesting the same id replaces the whole record.
type Document struct {
	// ID is the document_id derived from the filename stem.
	ID string `json:"document_id"`
	// Filename is the original uploaded filename.
	Filename string `json:"filename"`
	// Format is the detected file type ("txt", "docx", "pdf").
	Format string `json:"file_type"`
	// Text is the full cleaned text of the document.
	Text string `json:"-"`
	// Summary is a short lead-in of the text.
	Summary string `json:"summary"`
	// WordCount is the number of whitespace-separated words in Text.
	WordCount int `json:"word_count"`
	// CharCount is the number of characters (code points) in Text.
	CharCount int `json:"char_count"`
	// ChunkCount is the number of entries in the document's index.
	ChunkCount int `json:"chunk_count"`
	// EmbeddingModel identifies the embedder the index was built with.
	EmbeddingModel string `json:"embedding_model"`
	// Dimensions is the vector length of the index.
	Dimensions int `json:"dimensions"`
	// IndexKey is the storage key of the persisted index revision.
	IndexKey string `json:"-"`
	// UploadedAt is when the document was published.
	UploadedAt time.Time `json:"upload_timestamp"`
}

// Turn is one prior question/answer exchange, supplied per request to give
// the chat model conversational context. It plays no part in retrieval.
type Turn struct {
	// Question is what the user asked.
	Question string `json:"question"`
	// Answer is what the assistant replied.
	Answer string `json:"answer"`
}

// Match is one search hit from a VectorIndex.
type Match struct {
	// Text is the chunk text.
	Text string `json:"text"`
	// Score is the cosine similarity between the query and the chunk.
	Score float32 `json:"score"`
	// Position is the chunk's zero-based position in the document.
	Position int `json:"position"`
}

// Passage is a chunk together with its vector, as written to an external
// VectorStore.
type Passage struct {
	// DocumentID is the owning document.
	DocumentID string
	// Position is the chunk's zero-based position in the document.
	Position int
	// Content is the chunk text.
	Content string
	// Vector is the chunk embedding.
	Vector []float32
}

// Embedder converts text into dense vector embeddings. Implementations must
// return exactly one vector per input, in input order.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName identifies the embedding model. Indexes are stamped with it
	// and queries are rejected when it changes.
	ModelName() string
}

// BlobStore is a durable key-value byte store for serialized indexes.
type BlobStore interface {
	// Put stores data under key, replacing any existing value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the value stored under key. It returns an error wrapping
	// ErrBlobNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether key has a stored value.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// VectorStore is an external vector database that receives a copy of every
// published document's passages.
type VectorStore interface {
	// Upsert stores or replaces the given passages.
	Upsert(ctx context.Context, passages []Passage) error

	// DeleteDocument removes every passage belonging to documentID.
	DeleteDocument(ctx context.Context, documentID string) error

	// Close releases any resources held by the store.
	Close() error
}
