package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fwojciec/relay"
)

var _ relay.ToolExecutor = (*ToolExecutor)(nil)

// ToolCall is one call received by a [ToolExecutor].
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// ToolExecutor is a test double for relay.ToolExecutor that records every
// call before answering it with ExecuteFn. A nil ExecuteFn panics, so an
// executor that must not run can be left empty.
type ToolExecutor struct {
	ExecuteFn func(ctx context.Context, name string, args json.RawMessage) (*relay.ToolResult, error)

	mu    sync.Mutex
	calls []ToolCall
}

// Execute records the call and delegates to ExecuteFn.
func (e *ToolExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (*relay.ToolResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, ToolCall{Name: name, Args: args})
	e.mu.Unlock()
	return e.ExecuteFn(ctx, name, args)
}

// Calls returns the recorded calls in order.
func (e *ToolExecutor) Calls() []ToolCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ToolCall(nil), e.calls...)
}
