// Package pipeline implements the document lifecycle: ingest (extract, clean,
// chunk, embed, persist, publish) and query (lookup, load, embed, search,
// assemble context). It owns the in-memory document table and the index
// cache; durable state lives in the configured BlobStore and Catalog.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/cache"
	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/extract"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

const (
	// DefaultMaxContextChars bounds the context string handed to the chat model.
	DefaultMaxContextChars = 2000

	// EvaluateTopK is the number of chunks considered when grading an answer.
	EvaluateTopK = 3

	// KeyPointsQuery is the generic query used to pick representative
	// passages when no question is given.
	KeyPointsQuery = "key points"
)

// ErrChallengeIndex reports a challenge index outside the document's
// key-points passages.
var ErrChallengeIndex = errors.New("challenge index out of range")

// TextExtractor turns uploaded bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, filename string) (*extract.Result, error)
}

// Catalog is the durable record of published documents. It lets Restore
// rebuild the document table after a restart.
type Catalog interface {
	// SaveDocument inserts or replaces the row for doc.ID.
	SaveDocument(ctx context.Context, doc rag.Document) error
	// DeleteDocument removes the row for documentID.
	DeleteDocument(ctx context.Context, documentID string) error
	// ListDocuments returns every row.
	ListDocuments(ctx context.Context) ([]rag.Document, error)
}

// Config holds the dependencies and tuning for New.
type Config struct {
	// Extractor reads uploaded files. Required.
	Extractor TextExtractor

	// Embedder embeds chunks at ingest and questions at query time. Required.
	Embedder rag.Embedder

	// Blobs persists serialized indexes. Required.
	Blobs rag.BlobStore

	// Catalog persists document records. Optional; without it documents do
	// not survive a restart.
	Catalog Catalog

	// Mirror receives a copy of every published document's passages.
	// Optional.
	Mirror rag.VectorStore

	// ChunkSize is the chunk window in characters. Defaults to
	// chunker.DefaultSize.
	ChunkSize int

	// ChunkOverlap is the overlap between consecutive chunks. Defaults to
	// chunker.DefaultOverlap, or a fifth of ChunkSize when that is smaller.
	ChunkOverlap int

	// BatchSize is the number of chunks per embedding request. Defaults to
	// rag.DefaultBatchSize.
	BatchSize int

	// TopK is the number of chunks retrieved when a query passes k <= 0.
	// Defaults to rag.DefaultTopK.
	TopK int

	// MaxContextChars caps the assembled context in characters. Defaults to
	// DefaultMaxContextChars.
	MaxContextChars int

	// CacheSize is the number of indexes kept in memory. Defaults to
	// cache.DefaultMaxEntries.
	CacheSize int

	// Registerer receives pipeline and cache metrics. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// Logger is used for best-effort cleanup failures. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Pipeline ingests documents and answers retrieval queries against them. It
// is safe for concurrent use.
type Pipeline struct {
	extractor TextExtractor
	embedder  rag.Embedder
	retriever *rag.Retriever
	blobs     rag.BlobStore
	catalog   Catalog
	mirror    rag.VectorStore
	cache     *cache.Cache
	metrics   *pipelineMetrics
	log       *slog.Logger

	chunkSize       int
	chunkOverlap    int
	batchSize       int
	maxContextChars int

	// publishing serialises the catalog write, table swap and cleanup of
	// ingests and deletes that share a document id.
	publishing idLocks

	mu   sync.RWMutex
	docs map[string]rag.Document
}

// IngestResult describes a newly published document.
type IngestResult struct {
	// DocumentID is the id queries must use.
	DocumentID string `json:"document_id"`
	// Filename is the uploaded filename.
	Filename string `json:"filename"`
	// Format is the detected file type.
	Format string `json:"file_type"`
	// Summary is the first sentences of the text.
	Summary string `json:"summary"`
	// WordCount is the number of whitespace-separated words.
	WordCount int `json:"word_count"`
	// CharCount is the number of characters (code points).
	CharCount int `json:"char_count"`
	// ChunkCount is the number of indexed chunks.
	ChunkCount int `json:"chunk_count"`
	// Text is the cleaned document text.
	Text string `json:"-"`
}

// QueryResult is the retrieval output for one question.
type QueryResult struct {
	// Context is the matched chunk texts joined in rank order and truncated.
	Context string `json:"context"`
	// Matches are the ranked hits the context was built from.
	Matches []rag.Match `json:"matches"`
}

// Evaluation grades a user's answer against the document.
type Evaluation struct {
	// Correct reports whether the answer appears in the expected text.
	Correct bool `json:"correct"`
	// Expected is the first sentence of the best-matching chunk.
	Expected string `json:"expected"`
}

// New constructs a Pipeline from cfg.
func New(cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: config must not be nil")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("pipeline: extractor must not be nil")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("pipeline: blob store must not be nil")
	}
	retriever, err := rag.NewRetriever(cfg.Embedder, cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	size := cfg.ChunkSize
	if size <= 0 {
		size = chunker.DefaultSize
	}
	overlap := cfg.ChunkOverlap
	if overlap <= 0 {
		overlap = min(chunker.DefaultOverlap, max(size/5, 1))
	}
	if overlap >= size {
		return nil, fmt.Errorf("pipeline: chunk overlap %d must be less than chunk size %d: %w",
			overlap, size, chunker.ErrInvalidConfig)
	}
	maxChars := cfg.MaxContextChars
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		extractor:       cfg.Extractor,
		embedder:        cfg.Embedder,
		retriever:       retriever,
		blobs:           cfg.Blobs,
		catalog:         cfg.Catalog,
		mirror:          cfg.Mirror,
		metrics:         newPipelineMetrics(reg),
		log:             logger,
		chunkSize:       size,
		chunkOverlap:    overlap,
		batchSize:       cfg.BatchSize,
		maxContextChars: maxChars,
		docs:            make(map[string]rag.Document),
	}

	c, err := cache.New(cache.Config{
		MaxEntries: cfg.CacheSize,
		Loader:     p.loadIndex,
		Registerer: reg,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.cache = c
	return p, nil
}

// Ingest extracts, indexes and publishes a document. The document becomes
// visible to queries only once its index is persisted; an existing document
// with the same id keeps serving until then. Re-ingesting an id replaces the
// previous revision and removes its stored index.
func (p *Pipeline) Ingest(ctx context.Context, data []byte, filename string) (*IngestResult, error) {
	start := time.Now()
	id := DocumentID(filename)
	log := p.log.With(slog.String("document_id", id), slog.String("filename", filename))

	res, err := p.extractor.Extract(ctx, data, filename)
	if err != nil {
		p.metrics.ingestFailures.Inc()
		return nil, err //nolint:wrapcheck // already a rag.Error
	}

	text := CleanText(res.Text)
	if text == "" {
		p.metrics.ingestFailures.Inc()
		return nil, rag.Errorf(rag.KindEmptyContent, "%s contains no extractable text", filename)
	}

	chunks, err := chunker.Chunk(text, p.chunkSize, p.chunkOverlap)
	if err != nil {
		p.metrics.ingestFailures.Inc()
		return nil, fmt.Errorf("pipeline: chunk %s: %w", id, err)
	}

	ix, err := rag.Build(ctx, chunks, p.embedder, &rag.BuildOptions{BatchSize: p.batchSize})
	if err != nil {
		p.metrics.ingestFailures.Inc()
		return nil, err //nolint:wrapcheck // already a rag.Error
	}

	key := store.IndexKey(id)
	if err := rag.SaveIndex(ctx, p.blobs, key, ix); err != nil {
		p.metrics.ingestFailures.Inc()
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	doc := rag.Document{
		ID:             id,
		Filename:       filename,
		Format:         res.Format,
		Text:           text,
		Summary:        Summarize(text),
		WordCount:      len(strings.Fields(text)),
		CharCount:      utf8.RuneCountInString(text),
		ChunkCount:     ix.Len(),
		EmbeddingModel: ix.Model(),
		Dimensions:     ix.Dimensions(),
		IndexKey:       key,
		UploadedAt:     time.Now().UTC(),
	}

	// The catalog row and the table entry must name the same revision, so
	// concurrent ingests of one id publish one at a time.
	unlock := p.publishing.lock(id)
	defer unlock()

	if p.catalog != nil {
		if err := p.catalog.SaveDocument(ctx, doc); err != nil {
			p.deleteBlob(ctx, log, key)
			p.metrics.ingestFailures.Inc()
			return nil, fmt.Errorf("pipeline: record %s: %w", id, err)
		}
	}

	p.mu.Lock()
	prev, replaced := p.docs[id]
	p.docs[id] = doc
	p.cache.Put(id, ix)
	p.mu.Unlock()

	if replaced && prev.IndexKey != "" && prev.IndexKey != key {
		p.deleteBlob(ctx, log, prev.IndexKey)
	}
	p.mirrorPassages(ctx, log, id, ix)

	p.metrics.ingested.Inc()
	p.metrics.chunks.Observe(float64(ix.Len()))
	p.metrics.ingestDuration.Observe(time.Since(start).Seconds())
	log.Info("document ingested",
		slog.String("format", res.Format),
		slog.Int("chunks", ix.Len()),
		slog.Bool("replaced", replaced),
	)

	return &IngestResult{
		DocumentID: id,
		Filename:   filename,
		Format:     res.Format,
		Summary:    doc.Summary,
		WordCount:  doc.WordCount,
		CharCount:  doc.CharCount,
		ChunkCount: doc.ChunkCount,
		Text:       text,
	}, nil
}

// QueryContext retrieves the top-k chunks of documentID for question and
// assembles them into a context string. k <= 0 uses the configured default.
func (p *Pipeline) QueryContext(ctx context.Context, documentID, question string, k int) (*QueryResult, error) {
	doc, err := p.Document(documentID)
	if err != nil {
		return nil, err
	}
	if model := p.retriever.Model(); doc.EmbeddingModel != model {
		return nil, rag.Errorf(rag.KindConfigurationMismatch,
			"document %s was indexed with embedding model %q, configured model is %q",
			documentID, doc.EmbeddingModel, model)
	}

	ix, err := p.cache.GetOrLoad(ctx, documentID)
	if err != nil {
		return nil, err //nolint:wrapcheck // already a rag.Error
	}

	matches, err := p.retriever.Retrieve(ctx, ix, question, k)
	if err != nil {
		return nil, err //nolint:wrapcheck // already a rag.Error
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	p.metrics.queries.Inc()
	return &QueryResult{
		Context: budget.Truncate(strings.Join(texts, "\n"), p.maxContextChars),
		Matches: matches,
	}, nil
}

// Delete removes documentID from the catalog, the document table and the
// cache. Its stored index and mirrored passages are removed best effort.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	unlock := p.publishing.lock(documentID)
	defer unlock()

	doc, err := p.Document(documentID)
	if err != nil {
		return err
	}
	if p.catalog != nil {
		if err := p.catalog.DeleteDocument(ctx, documentID); err != nil {
			return fmt.Errorf("pipeline: delete %s: %w", documentID, err)
		}
	}

	p.mu.Lock()
	delete(p.docs, documentID)
	p.cache.Remove(documentID)
	p.mu.Unlock()

	log := p.log.With(slog.String("document_id", documentID))
	if doc.IndexKey != "" {
		p.deleteBlob(ctx, log, doc.IndexKey)
	}
	if p.mirror != nil {
		if err := p.mirror.DeleteDocument(ctx, documentID); err != nil {
			log.Warn("mirror: failed to delete passages", slog.Any("error", err))
		}
	}
	log.Info("document deleted")
	return nil
}

// Document returns the record for documentID.
func (p *Pipeline) Document(documentID string) (rag.Document, error) {
	p.mu.RLock()
	doc, ok := p.docs[documentID]
	p.mu.RUnlock()
	if !ok {
		return rag.Document{}, rag.Errorf(rag.KindDocumentNotFound, "document %q not found", documentID)
	}
	return doc, nil
}

// Documents returns every published document ordered by id.
func (p *Pipeline) Documents() []rag.Document {
	p.mu.RLock()
	out := make([]rag.Document, 0, len(p.docs))
	for _, d := range p.docs {
		out = append(out, d)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore loads the catalog into the document table. Indexes are not read
// until the first query for each document. It returns the number of
// documents restored.
func (p *Pipeline) Restore(ctx context.Context) (int, error) {
	if p.catalog == nil {
		return 0, nil
	}
	docs, err := p.catalog.ListDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("pipeline: restore: %w", err)
	}
	p.mu.Lock()
	for _, d := range docs {
		p.docs[d.ID] = d
	}
	p.mu.Unlock()
	p.log.Info("catalog restored", slog.Int("documents", len(docs)))
	return len(docs), nil
}

// Evaluate grades answer against documentID. The expected answer is the
// first sentence of the chunk that best matches question (or a generic
// "key points" query when question is empty). The answer is correct when it
// is non-empty and contained, case-insensitively, in the expected text.
func (p *Pipeline) Evaluate(ctx context.Context, documentID, question, answer string) (*Evaluation, error) {
	query := strings.TrimSpace(question)
	if query == "" {
		query = KeyPointsQuery
	}
	res, err := p.QueryContext(ctx, documentID, query, EvaluateTopK)
	if err != nil {
		return nil, err
	}
	if len(res.Matches) == 0 {
		return &Evaluation{}, nil
	}

	return grade(res.Matches[0].Text, answer), nil
}

// EvaluateChallenge grades answer against the challenge at index, counting
// from zero in the order POST .../challenges returns them. The expected
// answer is the first sentence of the key-points passage the challenge was
// written from. It returns ErrChallengeIndex when index is negative or the
// document has fewer passages.
func (p *Pipeline) EvaluateChallenge(ctx context.Context, documentID string, index int, answer string) (*Evaluation, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrChallengeIndex, index)
	}
	passages, err := p.Passages(ctx, documentID, KeyPointsQuery, index+1)
	if err != nil {
		return nil, err
	}
	if index >= len(passages) {
		return nil, fmt.Errorf("%w: %d, document %s has %d passages",
			ErrChallengeIndex, index, documentID, len(passages))
	}
	return grade(passages[index], answer), nil
}

// grade compares answer with the first sentence of passage.
func grade(passage, answer string) *Evaluation {
	expected := firstSentence(passage)
	given := strings.ToLower(strings.TrimSpace(answer))
	return &Evaluation{
		Correct:  given != "" && strings.Contains(strings.ToLower(expected), given),
		Expected: expected,
	}
}

// Passages returns the texts of the top-k chunks for query, in rank order.
func (p *Pipeline) Passages(ctx context.Context, documentID, query string, k int) ([]string, error) {
	res, err := p.QueryContext(ctx, documentID, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(res.Matches))
	for i, m := range res.Matches {
		out[i] = m.Text
	}
	return out, nil
}

// loadIndex is the cache loader: it resolves the document's current index key
// and reads the index from the blob store.
func (p *Pipeline) loadIndex(ctx context.Context, documentID string) (*rag.VectorIndex, error) {
	doc, err := p.Document(documentID)
	if err != nil {
		return nil, err
	}
	if doc.IndexKey == "" {
		return nil, rag.Errorf(rag.KindIndexNotFound, "document %q has no stored index", documentID)
	}
	ix, err := rag.LoadIndex(ctx, p.blobs, doc.IndexKey)
	if err != nil {
		return nil, err //nolint:wrapcheck // already classified by LoadIndex
	}
	p.log.Debug("index loaded from storage",
		slog.String("document_id", documentID),
		slog.String("key", doc.IndexKey),
	)
	return ix, nil
}

// deleteBlob removes a superseded or orphaned index, logging on failure.
func (p *Pipeline) deleteBlob(ctx context.Context, log *slog.Logger, key string) {
	if err := p.blobs.Delete(ctx, key); err != nil {
		log.Warn("storage: failed to delete index", slog.String("key", key), slog.Any("error", err))
	}
}

// mirrorPassages replaces the document's passages in the mirror, if one is
// configured. Failures are logged and do not affect the ingest.
func (p *Pipeline) mirrorPassages(ctx context.Context, log *slog.Logger, documentID string, ix *rag.VectorIndex) {
	if p.mirror == nil {
		return
	}
	if err := p.mirror.DeleteDocument(ctx, documentID); err != nil {
		log.Warn("mirror: failed to clear passages", slog.Any("error", err))
		return
	}
	if err := p.mirror.Upsert(ctx, ix.Passages(documentID)); err != nil {
		log.Warn("mirror: failed to upsert passages", slog.Any("error", err))
	}
}
