package json

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/relay"
)

// contentBlock is the JSON representation of a ContentBlock with a type discriminator.
type contentBlock struct {
	Type      string           `json:"type"`
	Text      *string          `json:"text,omitempty"`
	ID        *string          `json:"id,omitempty"`
	Name      *string          `json:"name,omitempty"`
	Arguments *json.RawMessage `json:"arguments,omitempty"`
	Result    *json.RawMessage `json:"result,omitempty"`
	IsError   *bool            `json:"is_error,omitempty"`
}

func marshalContentBlocks(blocks []relay.ContentBlock) ([]contentBlock, error) {
	result := make([]contentBlock, len(blocks))
	for i, b := range blocks {
		cb, err := marshalContentBlock(b)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = cb
	}
	return result, nil
}

func marshalContentBlock(b relay.ContentBlock) (contentBlock, error) {
	switch v := b.(type) {
	case relay.TextBlock:
		return contentBlock{Type: "text", Text: &v.Text}, nil
	case relay.ToolCallBlock:
		args := v.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		return contentBlock{Type: "tool_call", ID: &v.ID, Name: &v.Name, Arguments: &args}, nil
	case relay.ToolResultBlock:
		raw, err := json.Marshal(v.Result)
		if err != nil {
			return contentBlock{}, fmt.Errorf("tool result %s: %w", v.ID, err)
		}
		res := json.RawMessage(raw)
		cb := contentBlock{Type: "tool_result", ID: &v.ID, Name: &v.Name, Result: &res}
		if v.IsError {
			cb.IsError = &v.IsError
		}
		return cb, nil
	default:
		return contentBlock{}, fmt.Errorf("unknown content block type: %T", b)
	}
}

func unmarshalContentBlocks(dtos []contentBlock) ([]relay.ContentBlock, error) {
	result := make([]relay.ContentBlock, len(dtos))
	for i, dto := range dtos {
		b, err := unmarshalContentBlock(dto)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = b
	}
	return result, nil
}

func unmarshalContentBlock(dto contentBlock) (relay.ContentBlock, error) {
	switch dto.Type {
	case "text":
		return relay.TextBlock{Text: deref(dto.Text)}, nil
	case "tool_call":
		return relay.ToolCallBlock{ID: deref(dto.ID), Name: deref(dto.Name), Arguments: compact(dto.Arguments)}, nil
	case "tool_result":
		var result any
		if dto.Result != nil {
			if err := json.Unmarshal(*dto.Result, &result); err != nil {
				return nil, fmt.Errorf("decode tool result: %w", err)
			}
		}
		var isError bool
		if dto.IsError != nil {
			isError = *dto.IsError
		}
		return relay.ToolResultBlock{ID: deref(dto.ID), Name: deref(dto.Name), Result: result, IsError: isError}, nil
	default:
		return nil, fmt.Errorf("unknown content block type: %q", dto.Type)
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// compact strips insignificant whitespace, which indented envelopes add to
// embedded raw arguments.
func compact(raw *json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, *raw); err != nil {
		return *raw
	}
	return buf.Bytes()
}
