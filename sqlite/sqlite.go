// Package sqlite implements conversation persistence on SQLite using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/relay"
	relayjson "github.com/fwojciec/relay/json"
	_ "modernc.org/sqlite"
)

// Interface compliance checks.
var (
	_ relay.ConversationStore  = (*Store)(nil)
	_ relay.ConversationReader = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	messages   TEXT NOT NULL,
	reasoning  TEXT NOT NULL,
	responses  TEXT
)`

// Store persists conversation snapshots in a single table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateConversation upserts the snapshot for id. Stored responses are kept
// when u.ResponseMessages is nil. An empty id is a no-op.
func (s *Store) UpdateConversation(ctx context.Context, id string, u relay.ConversationUpdate) error {
	if id == "" {
		return nil
	}
	msgs, err := relayjson.MarshalMessages(u.RawMessages)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	reasoning, err := relayjson.MarshalReasoning(u.Reasoning)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	var responses sql.NullString
	if u.ResponseMessages != nil {
		b, err := relayjson.MarshalResponses(u.ResponseMessages)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		responses = sql.NullString{String: string(b), Valid: true}
	}

	now := s.now().UnixMicro()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at, updated_at, messages, reasoning, responses)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			messages   = excluded.messages,
			reasoning  = excluded.reasoning,
			responses  = COALESCE(excluded.responses, conversations.responses)
	`, id, now, now, string(msgs), string(reasoning), responses)
	if err != nil {
		return fmt.Errorf("sqlite: update conversation %s: %w", id, err)
	}
	return nil
}

// Conversation loads the conversation with id.
func (s *Store) Conversation(ctx context.Context, id string) (*relay.Conversation, error) {
	var (
		created, updated int64
		msgs, reasoning  string
		responses        sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, updated_at, messages, reasoning, responses
		FROM conversations
		WHERE id = ?
	`, id).Scan(&created, &updated, &msgs, &reasoning, &responses)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: %s: %w", id, relay.ErrConversationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: query conversation %s: %w", id, err)
	}

	conv := &relay.Conversation{
		ID:        id,
		CreatedAt: time.UnixMicro(created),
		UpdatedAt: time.UnixMicro(updated),
	}
	if conv.Messages, err = relayjson.UnmarshalMessages([]byte(msgs)); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if conv.Reasoning, err = relayjson.UnmarshalReasoning([]byte(reasoning)); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if responses.Valid {
		if conv.Responses, err = relayjson.UnmarshalResponses([]byte(responses.String)); err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
	}
	return conv, nil
}

// Summary is one row of List.
type Summary struct {
	ID        string
	UpdatedAt time.Time
}

// List returns up to limit conversations, most recently updated first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, updated_at
		FROM conversations
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list conversations: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			updated int64
		)
		if err := rows.Scan(&sum.ID, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan conversation: %w", err)
		}
		sum.UpdatedAt = time.UnixMicro(updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate conversations: %w", err)
	}
	return out, nil
}
