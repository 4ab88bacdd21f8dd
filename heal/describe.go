// Package heal classifies agent-turn failures and synthesizes the messages
// that let the model correct itself on the next attempt.
package heal

import (
	"context"
	"errors"

	"github.com/fwojciec/relay"
)

// Descriptor is a normalized view of an error. Describe is the only place
// that inspects concrete error types; classification works on descriptors.
type Descriptor struct {
	Type           Kind // set for errors recognized by type
	Message        string
	ToolCallID     string
	ToolName       string
	Arguments      string
	Issues         []relay.ValidationIssue
	AvailableTools []string
	StatusCode     int
	Retryable      bool
	Canceled       bool
}

// Describe normalizes err into a Descriptor.
func Describe(err error) Descriptor {
	if err == nil {
		return Descriptor{}
	}
	d := Descriptor{Message: err.Error()}

	var noTool *relay.NoSuchToolError
	var badArgs *relay.InvalidToolArgumentsError
	var provider *relay.ProviderError
	switch {
	case errors.As(err, &noTool):
		d.Type = KindNoSuchTool
		d.ToolCallID = noTool.ToolCallID
		d.ToolName = noTool.ToolName
		d.AvailableTools = noTool.AvailableTools
	case errors.As(err, &badArgs):
		d.Type = KindInvalidToolArguments
		d.ToolCallID = badArgs.ToolCallID
		d.ToolName = badArgs.ToolName
		d.Arguments = badArgs.Arguments
		d.Issues = badArgs.Issues
	case errors.Is(err, relay.ErrEmptyResponse):
		d.Type = KindEmptyResponse
	}
	if errors.As(err, &provider) {
		d.StatusCode = provider.StatusCode
		d.Retryable = provider.Retryable
	}
	d.Canceled = errors.Is(err, context.Canceled)
	return d
}
