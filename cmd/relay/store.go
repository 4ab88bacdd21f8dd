package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fwojciec/relay"
	relayjson "github.com/fwojciec/relay/json"
	"github.com/fwojciec/relay/sqlite"
	"github.com/google/uuid"
)

type store interface {
	relay.ConversationStore
	relay.ConversationReader
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore opens the configured conversation store.
func openStore(ctx context.Context, cfg StoreConfig) (store, io.Closer, error) {
	switch cfg.Driver {
	case "json":
		return relayjson.NewStore(cfg.Path), nopCloser{}, nil
	default:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

// loadConversation resumes id from s, or starts a new conversation when id
// is empty or unknown.
func loadConversation(ctx context.Context, s relay.ConversationReader, id string, now time.Time) (*relay.Conversation, error) {
	if id == "" {
		return &relay.Conversation{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}, nil
	}
	conv, err := s.Conversation(ctx, id)
	switch {
	case err == nil:
		return conv, nil
	case errors.Is(err, relay.ErrConversationNotFound):
		return &relay.Conversation{ID: id, CreatedAt: now, UpdatedAt: now}, nil
	default:
		return nil, fmt.Errorf("load conversation %s: %w", id, err)
	}
}

// listConversations prints stored conversations, newest first.
func listConversations(ctx context.Context, w io.Writer, s store, limit int) error {
	lister, ok := s.(*sqlite.Store)
	if !ok {
		return fmt.Errorf("listing conversations requires the sqlite store")
	}
	summaries, err := lister.List(ctx, limit)
	if err != nil {
		return err
	}
	for _, sum := range summaries {
		fmt.Fprintf(w, "%s  %s\n", sum.UpdatedAt.Format(time.DateTime), sum.ID)
	}
	return nil
}
