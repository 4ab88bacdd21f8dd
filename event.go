package relay

import "encoding/json"

// Event is a sealed interface representing one step of an agent invocation
// stream. Events are purely semantic. Transport/protocol errors come from
// Next()'s error return, not from events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventTextDelta represents a text content fragment.
type EventTextDelta struct {
	Delta string
}

func (EventTextDelta) event() {}

// EventToolCall announces a complete, non-streamed tool call.
type EventToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

func (EventToolCall) event() {}

// EventToolCallStreamingStart signals that a tool call has begun streaming.
// No arguments are known yet.
type EventToolCallStreamingStart struct {
	ID   string
	Name string
}

func (EventToolCallStreamingStart) event() {}

// EventToolCallDelta carries a fragment of the raw argument text of a
// streaming tool call.
type EventToolCallDelta struct {
	ID    string
	Delta string
}

func (EventToolCallDelta) event() {}

// EventToolResult carries the result of an executed tool call. Result is an
// arbitrary JSON-compatible value (string, map, slice, number, bool or nil).
type EventToolResult struct {
	ID      string
	Name    string
	Result  any
	IsError bool
}

func (EventToolResult) event() {}

// EventStepFinish marks the end of one model step.
type EventStepFinish struct {
	Reason FinishReason
	Usage  Usage
}

func (EventStepFinish) event() {}

// EventFinish marks the end of the whole invocation.
type EventFinish struct {
	Reason FinishReason
	Usage  Usage
}

func (EventFinish) event() {}

// Interface compliance checks.
var (
	_ Event = EventTextDelta{}
	_ Event = EventToolCall{}
	_ Event = EventToolCallStreamingStart{}
	_ Event = EventToolCallDelta{}
	_ Event = EventToolResult{}
	_ Event = EventStepFinish{}
	_ Event = EventFinish{}
)
