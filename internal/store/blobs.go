package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/rag"
)

// IndexKey returns a fresh storage key for a new index revision of
// documentID. Keys are never reused, so a revision is never overwritten in
// place.
func IndexKey(documentID string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return documentID + "/" + id.String() + ".idx"
}

// Put stores data under key, replacing any existing value.
func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte) error {
	const q = `
INSERT INTO index_blobs (key, data, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, key, data, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

// Get returns the blob stored under key, or an error wrapping
// rag.ErrBlobNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT data FROM index_blobs WHERE key = ?`
	var data []byte
	err := s.db.QueryRowContext(ctx, q, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: get %s: %w", key, rag.ErrBlobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether key has a stored blob.
func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM index_blobs WHERE key = ?)`
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&ok); err != nil {
		return false, fmt.Errorf("store: exists %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM index_blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}
