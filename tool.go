package relay

import (
	"context"
	"encoding/json"
)

// Tool describes a callable tool to the model. Parameters holds the JSON
// Schema of its arguments.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolExecutor runs a named tool with raw JSON arguments.
//
// A returned error means the tool could not run at all. Failures the model
// should see and react to, such as a bad SQL statement or an unsafe path, are
// reported as a result with IsError set and a nil error.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error)
}

// ToolResult is what a tool hands back to the model. Value must marshal to
// JSON; strings are sent as-is.
type ToolResult struct {
	Value   any
	IsError bool
}
