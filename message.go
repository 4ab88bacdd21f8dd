package relay

import (
	"encoding/json"
	"time"
)

// Message is a sealed interface representing a conversation message.
// The unexported marker method prevents external implementations.
// Role() returns the message's role without requiring a type switch.
type Message interface {
	isMessage()
	Role() Role
	Blocks() []ContentBlock
}

// UserMessage represents a message from the user.
type UserMessage struct {
	Content   []ContentBlock
	Timestamp time.Time
}

func (UserMessage) isMessage() {}

// Role returns RoleUser.
func (UserMessage) Role() Role { return RoleUser }

// Blocks returns the message content.
func (m UserMessage) Blocks() []ContentBlock { return m.Content }

// AssistantMessage represents a message from the assistant.
type AssistantMessage struct {
	Content   []ContentBlock
	Timestamp time.Time
}

func (AssistantMessage) isMessage() {}

// Role returns RoleAssistant.
func (AssistantMessage) Role() Role { return RoleAssistant }

// Blocks returns the message content.
func (m AssistantMessage) Blocks() []ContentBlock { return m.Content }

// ToolCalls returns the tool-call parts of the message in order.
func (m AssistantMessage) ToolCalls() []ToolCallBlock {
	var calls []ToolCallBlock
	for _, b := range m.Content {
		if tc, ok := b.(ToolCallBlock); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// ToolMessage carries tool results back to the model.
type ToolMessage struct {
	Content   []ContentBlock
	Timestamp time.Time
}

func (ToolMessage) isMessage() {}

// Role returns RoleTool.
func (ToolMessage) Role() Role { return RoleTool }

// Blocks returns the message content.
func (m ToolMessage) Blocks() []ContentBlock { return m.Content }

// NewUserText returns a user message with a single text part.
func NewUserText(text string) UserMessage {
	return UserMessage{Content: []ContentBlock{TextBlock{Text: text}}, Timestamp: time.Now()}
}

// NewToolResult returns a tool message with a single result part.
func NewToolResult(id, name string, result any, isError bool) ToolMessage {
	return ToolMessage{
		Content:   []ContentBlock{ToolResultBlock{ID: id, Name: name, Result: result, IsError: isError}},
		Timestamp: time.Now(),
	}
}

// ContentBlock is a sealed interface representing a block of content.
// The unexported marker method prevents external implementations.
type ContentBlock interface {
	contentBlock()
}

// TextBlock contains text content.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ToolCallBlock represents a tool call from the assistant. Arguments is empty
// until the call's argument text parses as a JSON object.
type ToolCallBlock struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

func (ToolCallBlock) contentBlock() {}

// ToolResultBlock represents the result of a tool call.
type ToolResultBlock struct {
	ID      string
	Name    string
	Result  any
	IsError bool
}

func (ToolResultBlock) contentBlock() {}

// Interface compliance checks.
var (
	_ Message = UserMessage{}
	_ Message = AssistantMessage{}
	_ Message = ToolMessage{}

	_ ContentBlock = TextBlock{}
	_ ContentBlock = ToolCallBlock{}
	_ ContentBlock = ToolResultBlock{}
)
