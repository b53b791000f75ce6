package store

import (
	"context"
	"fmt"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a question asked by the user.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by the chat model.
	RoleAssistant Role = "assistant"
)

// Message is one side of a persisted question/answer turn.
type Message struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// ConversationStore persists question/answer turns per document.
// Implementations must be safe for concurrent use.
type ConversationStore interface {
	// AppendTurn stores a question and its answer together. Either both
	// messages are persisted or neither is.
	AppendTurn(ctx context.Context, documentID, question, answer string) error
	// Recent returns up to n most recent messages for the document, oldest
	// first.
	Recent(ctx context.Context, documentID string, n int) ([]Message, error)
}

// AppendTurn inserts the user and assistant messages in one transaction.
func (s *SQLiteStore) AppendTurn(ctx context.Context, documentID, question, answer string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: append turn: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO conversations (document_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	now := time.Now().UnixMilli()
	for _, m := range []struct {
		role    Role
		content string
	}{{RoleUser, question}, {RoleAssistant, answer}} {
		if _, err := tx.ExecContext(ctx, q, documentID, string(m.role), m.content, now); err != nil {
			return fmt.Errorf("store: append turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: append turn: commit: %w", err)
	}
	return nil
}

// Recent returns up to n most recent messages for the document, oldest
// first. Row ids give insertion order, which timestamps alone cannot since
// both halves of a turn share one.
func (s *SQLiteStore) Recent(ctx context.Context, documentID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	const q = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM   conversations
    WHERE  document_id = ?
    ORDER  BY id DESC
    LIMIT  ?
) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, documentID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m    Message
			role string
			ms   int64
		)
		if err := rows.Scan(&role, &m.Content, &ms); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.UnixMilli(ms)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return msgs, nil
}
