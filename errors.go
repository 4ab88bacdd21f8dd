package relay

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmptyResponse indicates the model produced no content at all.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrConversationNotFound indicates the store has no conversation with
	// the requested id.
	ErrConversationNotFound = errors.New("conversation not found")
)

// NoSuchToolError is returned when the model calls a tool that is not in the
// request's tool set.
type NoSuchToolError struct {
	ToolCallID     string
	ToolName       string
	AvailableTools []string
}

func (e *NoSuchToolError) Error() string {
	return fmt.Sprintf("no such tool: %q (available: %s)", e.ToolName, strings.Join(e.AvailableTools, ", "))
}

// Unwrap lets callers match with errors.Is(err, ErrToolNotFound).
func (e *NoSuchToolError) Unwrap() error { return ErrToolNotFound }

// ValidationIssue is one schema violation found in tool arguments.
type ValidationIssue struct {
	Path    string
	Message string
}

// InvalidToolArgumentsError is returned when a tool call's arguments do not
// parse or do not satisfy the tool's parameter schema.
type InvalidToolArgumentsError struct {
	ToolCallID string
	ToolName   string
	Arguments  string
	Issues     []ValidationIssue
	Cause      error
}

func (e *InvalidToolArgumentsError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid arguments for tool %q", e.ToolName)
	for _, is := range e.Issues {
		fmt.Fprintf(&b, "; %s: %s", is.Path, is.Message)
	}
	if e.Cause != nil && len(e.Issues) == 0 {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *InvalidToolArgumentsError) Unwrap() error { return e.Cause }

// ProviderError is a transport-level failure reported by a provider adapter.
// Retryable is the provider's own opinion; classification may still retry
// based on the status code or message.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Cause }
