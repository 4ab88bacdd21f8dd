// Package anthropic implements [relay.Provider] for the Anthropic Messages API.
//
// Requests are sent with stream enabled and the SSE response is parsed into
// relay events one step at a time. Tool results that no longer have a
// matching tool_use are downgraded to user text, and cached prompt tokens
// are counted as input.
package anthropic

import "encoding/json"

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 8192
	apiVersion       = "2023-06-01"
	messagesPath     = "/v1/messages"
)

// Request wire types.

type apiRequest struct {
	Model        string            `json:"model"`
	MaxTokens    int               `json:"max_tokens"`
	Stream       bool              `json:"stream"`
	System       []apiContentBlock `json:"system,omitempty"`
	Messages     []apiMessage      `json:"messages"`
	Tools        []apiTool         `json:"tools,omitempty"`
	ToolChoice   *apiToolChoice    `json:"tool_choice,omitempty"`
	Temperature  *float64          `json:"temperature,omitempty"`
	CacheControl *apiCacheControl  `json:"cache_control,omitempty"`
}

// apiCacheControl marks a prompt-caching breakpoint.
type apiCacheControl struct {
	Type string `json:"type"` // always "ephemeral"
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

// apiContentBlock is a text, tool_use or tool_result block. Only the fields
// of its Type are set.
type apiContentBlock struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name,omitempty"`
	Input        json.RawMessage   `json:"input,omitempty"`
	ToolUseID    string            `json:"tool_use_id,omitempty"`
	Content      []apiContentBlock `json:"content,omitempty"`
	IsError      bool              `json:"is_error,omitempty"`
	CacheControl *apiCacheControl  `json:"cache_control,omitempty"`
}

type apiToolChoice struct {
	Type string `json:"type"` // "auto", "any" or "none"
}

type apiTool struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	InputSchema  json.RawMessage  `json:"input_schema"`
	CacheControl *apiCacheControl `json:"cache_control,omitempty"`
}

// SSE wire types.

type sseMessageStart struct {
	Message struct {
		Usage sseUsage `json:"usage"`
	} `json:"message"`
}

// sseUsage appears in message_start and message_delta. Every input field is
// optional in message_delta, so all are pointers.
type sseUsage struct {
	InputTokens              *int `json:"input_tokens"`
	OutputTokens             int  `json:"output_tokens"`
	CacheCreationInputTokens *int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     *int `json:"cache_read_input_tokens"`
}

// input returns the prompt tokens including cache writes and reads, and
// whether any input field was present.
func (u sseUsage) input() (int, bool) {
	var total int
	var seen bool
	for _, p := range []*int{u.InputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens} {
		if p != nil {
			total += *p
			seen = true
		}
	}
	return total, seen
}

type sseContentBlockStart struct {
	Index        int `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
}

type sseContentBlockDelta struct {
	Index int `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

type sseContentBlockStop struct {
	Index int `json:"index"`
}

type sseMessageDelta struct {
	Delta struct {
		StopReason *string `json:"stop_reason"`
	} `json:"delta"`
	Usage sseUsage `json:"usage"`
}

// apiError is the body of an SSE error event and of non-200 responses.
type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
