package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fwojciec/relay"
)

// envelope is the v1 wire format for a persisted conversation.
type envelope struct {
	Version   int            `json:"version"`
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Messages  []messageDTO   `json:"messages"`
	Reasoning []reasoningDTO `json:"reasoning"`
	Responses []responseDTO  `json:"responses,omitempty"`
}

// MarshalConversation serializes a Conversation to JSON in v1 envelope format.
func MarshalConversation(c relay.Conversation) ([]byte, error) {
	msgs, err := marshalMessages(c.Messages)
	if err != nil {
		return nil, err
	}
	env := envelope{
		Version:   1,
		ID:        c.ID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  msgs,
		Reasoning: marshalReasoning(c.Reasoning),
		Responses: marshalResponses(c.Responses),
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalConversation deserializes a Conversation from JSON in v1 envelope format.
func UnmarshalConversation(data []byte) (relay.Conversation, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return relay.Conversation{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return relay.Conversation{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	msgs, err := unmarshalMessages(env.Messages)
	if err != nil {
		return relay.Conversation{}, err
	}
	return relay.Conversation{
		ID:        env.ID,
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		Messages:  msgs,
		Reasoning: unmarshalReasoning(env.Reasoning),
		Responses: unmarshalResponses(env.Responses),
	}, nil
}

// Save writes a Conversation to a JSON file, creating parent directories as needed.
func Save(path string, c relay.Conversation) error {
	data, err := MarshalConversation(c)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Conversation from a JSON file.
func Load(path string) (relay.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return relay.Conversation{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalConversation(data)
}

// Interface compliance checks.
var (
	_ relay.ConversationStore  = (*Store)(nil)
	_ relay.ConversationReader = (*Store)(nil)
)

// Store keeps one JSON file per conversation in a directory.
type Store struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+".json")
}

// UpdateConversation replaces the stored snapshot. Responses are kept when
// u.ResponseMessages is nil.
func (s *Store) UpdateConversation(_ context.Context, id string, u relay.ConversationUpdate) error {
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conv, err := Load(s.path(id))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		conv = relay.Conversation{ID: id, CreatedAt: now}
	case err != nil:
		return fmt.Errorf("json: %w", err)
	}
	conv.Messages = u.RawMessages
	conv.Reasoning = u.Reasoning
	if u.ResponseMessages != nil {
		conv.Responses = u.ResponseMessages
	}
	conv.UpdatedAt = now
	if err := Save(s.path(id), conv); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}

// Conversation loads a stored conversation.
func (s *Store) Conversation(_ context.Context, id string) (*relay.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := Load(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("json: %s: %w", id, relay.ErrConversationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return &conv, nil
}
