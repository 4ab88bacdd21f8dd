package relay

import "context"

// Stream uses a pull-based iterator pattern. Next returns io.EOF once the
// stream is exhausted. Cancellation flows through the context passed to
// Provider.Stream().
type Stream interface {
	Next() (Event, error)
	Close() error
}

// Provider is a strategy pattern interface for LLM providers.
type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) (Stream, error)

// Stream calls f(ctx, req).
func (f ProviderFunc) Stream(ctx context.Context, req Request) (Stream, error) {
	return f(ctx, req)
}

// ToolChoice controls whether the model may, must, or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// Request carries model selection and generation parameters.
// The provider uses its own defaults when fields are zero/nil.
type Request struct {
	Model        string // model ID, provider-specific; empty = provider default
	SystemPrompt string
	Messages     []Message
	Tools        []Tool
	ToolChoice   ToolChoice // empty = auto
	MaxTokens    int        // 0 = provider default
	Temperature  *float64   // nil = provider default

	// OnChunk, when set, observes every event the stream yields.
	OnChunk func(Event)
}

// ToolNames returns the names of the request's tools in order.
func (r Request) ToolNames() []string {
	names := make([]string, len(r.Tools))
	for i, t := range r.Tools {
		names[i] = t.Name
	}
	return names
}
