package store

import (
	"context"
	"fmt"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// SaveDocument inserts or replaces the catalog row for doc.ID.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc rag.Document) error {
	const q = `
INSERT OR REPLACE INTO documents (
    document_id, filename, file_type, text, summary, word_count, char_count,
    chunk_count, embedding_model, dimensions, index_key, uploaded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		doc.ID, doc.Filename, doc.Format, doc.Text, doc.Summary, doc.WordCount, doc.CharCount,
		doc.ChunkCount, doc.EmbeddingModel, doc.Dimensions, doc.IndexKey, doc.UploadedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: save document %s: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument removes the catalog row and conversation history of
// documentID. Deleting an absent document is not an error.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete document %s: begin: %w", documentID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: delete document %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("store: delete conversation %s: %w", documentID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete document %s: commit: %w", documentID, err)
	}
	return nil
}

// ListDocuments returns every catalog row ordered by document_id.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]rag.Document, error) {
	const q = `
SELECT document_id, filename, file_type, text, summary, word_count, char_count,
       chunk_count, embedding_model, dimensions, index_key, uploaded_at
FROM   documents
ORDER  BY document_id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var docs []rag.Document
	for rows.Next() {
		var d rag.Document
		var ts int64
		if err := rows.Scan(&d.ID, &d.Filename, &d.Format, &d.Text, &d.Summary, &d.WordCount,
			&d.CharCount, &d.ChunkCount, &d.EmbeddingModel, &d.Dimensions, &d.IndexKey, &ts); err != nil {
			return nil, fmt.Errorf("store: list documents scan: %w", err)
		}
		d.UploadedAt = time.UnixMilli(ts).UTC()
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list documents rows: %w", err)
	}
	return docs, nil
}
