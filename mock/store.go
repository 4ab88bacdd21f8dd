package mock

import (
	"context"
	"sync"

	"github.com/fwojciec/relay"
)

// Interface compliance checks.
var (
	_ relay.ConversationStore = (*ConversationStore)(nil)
	_ relay.ConversationStore = (*RecordingStore)(nil)
)

// ConversationStore is a test double for relay.ConversationStore.
// Set UpdateConversationFn before calling UpdateConversation.
type ConversationStore struct {
	UpdateConversationFn func(ctx context.Context, id string, u relay.ConversationUpdate) error
}

// UpdateConversation delegates to UpdateConversationFn.
func (s *ConversationStore) UpdateConversation(ctx context.Context, id string, u relay.ConversationUpdate) error {
	return s.UpdateConversationFn(ctx, id, u)
}

// RecordingStore records every update it receives. Err, when set, is
// returned from every call; the update is still recorded.
type RecordingStore struct {
	mu      sync.Mutex
	Err     error
	updates []relay.ConversationUpdate
}

// UpdateConversation records u.
func (s *RecordingStore) UpdateConversation(_ context.Context, _ string, u relay.ConversationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return s.Err
}

// Updates returns a copy of the recorded updates.
func (s *RecordingStore) Updates() []relay.ConversationUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.ConversationUpdate(nil), s.updates...)
}

// Last returns the most recent update, or the zero value.
func (s *RecordingStore) Last() relay.ConversationUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return relay.ConversationUpdate{}
	}
	return s.updates[len(s.updates)-1]
}
