package json

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fwojciec/relay"
)

// eventDTO is one line of an event log. Type "error" is not an event; it
// records a stream failure and is only meaningful to Replay.
type eventDTO struct {
	Type      string           `json:"type"`
	Delta     string           `json:"delta,omitempty"`
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Arguments *json.RawMessage `json:"arguments,omitempty"`
	Result    *json.RawMessage `json:"result,omitempty"`
	IsError   bool             `json:"is_error,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Usage     *usageDTO        `json:"usage,omitempty"`
	Message   string           `json:"message,omitempty"`
}

const typeError = "error"

// MarshalEvent serializes an Event to a single JSON object.
func MarshalEvent(evt relay.Event) ([]byte, error) {
	var dto eventDTO
	switch e := evt.(type) {
	case relay.EventTextDelta:
		dto = eventDTO{Type: "text_delta", Delta: e.Delta}
	case relay.EventToolCallStreamingStart:
		dto = eventDTO{Type: "tool_call_streaming_start", ID: e.ID, Name: e.Name}
	case relay.EventToolCallDelta:
		dto = eventDTO{Type: "tool_call_delta", ID: e.ID, Delta: e.Delta}
	case relay.EventToolCall:
		args := e.Arguments
		dto = eventDTO{Type: "tool_call", ID: e.ID, Name: e.Name, Arguments: &args}
	case relay.EventToolResult:
		raw, err := json.Marshal(e.Result)
		if err != nil {
			return nil, fmt.Errorf("tool result %s: %w", e.ID, err)
		}
		res := json.RawMessage(raw)
		dto = eventDTO{Type: "tool_result", ID: e.ID, Name: e.Name, Result: &res, IsError: e.IsError}
	case relay.EventStepFinish:
		dto = eventDTO{Type: "step_finish", Reason: string(e.Reason), Usage: marshalUsage(e.Usage)}
	case relay.EventFinish:
		dto = eventDTO{Type: "finish", Reason: string(e.Reason), Usage: marshalUsage(e.Usage)}
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
	return json.Marshal(dto)
}

// UnmarshalEvent deserializes an Event from a JSON object.
func UnmarshalEvent(data []byte) (relay.Event, error) {
	var dto eventDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return dto.event()
}

func (dto eventDTO) event() (relay.Event, error) {
	switch dto.Type {
	case "text_delta":
		return relay.EventTextDelta{Delta: dto.Delta}, nil
	case "tool_call_streaming_start":
		return relay.EventToolCallStreamingStart{ID: dto.ID, Name: dto.Name}, nil
	case "tool_call_delta":
		return relay.EventToolCallDelta{ID: dto.ID, Delta: dto.Delta}, nil
	case "tool_call":
		return relay.EventToolCall{ID: dto.ID, Name: dto.Name, Arguments: compact(dto.Arguments)}, nil
	case "tool_result":
		var result any
		if dto.Result != nil {
			if err := json.Unmarshal(*dto.Result, &result); err != nil {
				return nil, fmt.Errorf("decode tool result: %w", err)
			}
		}
		return relay.EventToolResult{ID: dto.ID, Name: dto.Name, Result: result, IsError: dto.IsError}, nil
	case "step_finish":
		return relay.EventStepFinish{Reason: relay.FinishReason(dto.Reason), Usage: unmarshalUsage(dto.Usage)}, nil
	case "finish":
		return relay.EventFinish{Reason: relay.FinishReason(dto.Reason), Usage: unmarshalUsage(dto.Usage)}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %q", dto.Type)
	}
}

// Encoder writes events as JSON lines.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one event line and flushes.
func (e *Encoder) Encode(evt relay.Event) error {
	data, err := MarshalEvent(evt)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return e.w.Flush()
}
