package relay

import (
	"context"
	"time"
)

// Conversation is the durable state of one conversation: its raw message
// history and the two projections derived from it.
type Conversation struct {
	ID        string
	Messages  []Message
	Reasoning []ReasoningEntry
	Responses []ResponseEntry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConversationUpdate is a full snapshot written by a turn. A nil
// ResponseMessages leaves the stored responses untouched.
type ConversationUpdate struct {
	RawMessages      []Message
	Reasoning        []ReasoningEntry
	ResponseMessages []ResponseEntry
}

// ConversationStore persists conversation snapshots. UpdateConversation must
// be safe to call repeatedly with the full current snapshot. An empty id is a
// no-op.
type ConversationStore interface {
	UpdateConversation(ctx context.Context, id string, u ConversationUpdate) error
}

// ConversationReader loads a stored conversation. It returns
// ErrConversationNotFound when the id is unknown.
type ConversationReader interface {
	Conversation(ctx context.Context, id string) (*Conversation, error)
}
