package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/relay"
)

// messageDTO is the JSON representation of a Message. Content is an array of
// blocks; a bare string is accepted on decode as a single text block.
type messageDTO struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
}

// MarshalMessages serializes a message history to a JSON array.
func MarshalMessages(msgs []relay.Message) ([]byte, error) {
	dtos, err := marshalMessages(msgs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dtos)
}

// UnmarshalMessages deserializes a JSON array of messages.
func UnmarshalMessages(data []byte) ([]relay.Message, error) {
	var dtos []messageDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return unmarshalMessages(dtos)
}

func marshalMessages(msgs []relay.Message) ([]messageDTO, error) {
	dtos := make([]messageDTO, len(msgs))
	for i, msg := range msgs {
		dto, err := marshalMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		dtos[i] = dto
	}
	return dtos, nil
}

func unmarshalMessages(dtos []messageDTO) ([]relay.Message, error) {
	msgs := make([]relay.Message, len(dtos))
	for i, dto := range dtos {
		msg, err := unmarshalMessage(dto)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = msg
	}
	return msgs, nil
}

func marshalMessage(msg relay.Message) (messageDTO, error) {
	var ts time.Time
	switch m := msg.(type) {
	case relay.UserMessage:
		ts = m.Timestamp
	case relay.AssistantMessage:
		ts = m.Timestamp
	case relay.ToolMessage:
		ts = m.Timestamp
	default:
		return messageDTO{}, fmt.Errorf("unknown message type: %T", msg)
	}
	blocks, err := marshalContentBlocks(msg.Blocks())
	if err != nil {
		return messageDTO{}, err
	}
	content, err := json.Marshal(blocks)
	if err != nil {
		return messageDTO{}, err
	}
	return messageDTO{Role: string(msg.Role()), Content: content, Timestamp: ts}, nil
}

func unmarshalMessage(dto messageDTO) (relay.Message, error) {
	blocks, err := unmarshalContent(dto.Content)
	if err != nil {
		return nil, err
	}
	var msg relay.Message
	switch relay.Role(dto.Role) {
	case relay.RoleUser:
		msg = relay.UserMessage{Content: blocks, Timestamp: dto.Timestamp}
	case relay.RoleAssistant:
		msg = relay.AssistantMessage{Content: blocks, Timestamp: dto.Timestamp}
	case relay.RoleTool:
		msg = relay.ToolMessage{Content: blocks, Timestamp: dto.Timestamp}
	default:
		return nil, fmt.Errorf("unknown message role: %q", dto.Role)
	}
	if err := relay.ValidateMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshalContent(raw json.RawMessage) ([]relay.ContentBlock, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("decode text content: %w", err)
		}
		return []relay.ContentBlock{relay.TextBlock{Text: text}}, nil
	}
	var dtos []contentBlock
	if err := json.Unmarshal(raw, &dtos); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return unmarshalContentBlocks(dtos)
}
