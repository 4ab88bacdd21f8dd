package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.Provider = (*Client)(nil)

// Client implements [relay.Provider] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new Anthropic [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream sends a streaming request to the Anthropic Messages API and returns
// a [relay.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	body, err := c.buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}

	return newStream(ctx, resp.Body), nil
}

func (c *Client) buildRequestBody(req relay.Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	apiReq := apiRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Stream:      true,
		System:      convertSystem(req.SystemPrompt),
		Messages:    msgs,
		Tools:       convertTools(req.Tools),
		Temperature: req.Temperature,
	}
	if len(apiReq.Tools) > 0 {
		apiReq.ToolChoice = convertToolChoice(req.ToolChoice)
	}
	injectCacheMarkers(&apiReq)

	return json.Marshal(apiReq)
}

// convertSystem converts a system prompt string to an array of content blocks
// suitable for the Anthropic API. Returns nil when the prompt is empty.
func convertSystem(prompt string) []apiContentBlock {
	if prompt == "" {
		return nil
	}
	return []apiContentBlock{{Type: "text", Text: prompt}}
}

func convertToolChoice(tc relay.ToolChoice) *apiToolChoice {
	switch tc {
	case relay.ToolChoiceRequired:
		return &apiToolChoice{Type: "any"}
	case relay.ToolChoiceNone:
		return &apiToolChoice{Type: "none"}
	default:
		return &apiToolChoice{Type: "auto"}
	}
}

// injectCacheMarkers sets cache_control breakpoints on the request:
//  1. Top-level: automatic caching for the conversation message window.
//  2. System prompt last block: stable content breakpoint.
//  3. Last tool: stable tool definitions breakpoint.
func injectCacheMarkers(req *apiRequest) {
	// cc is shared across all breakpoints; it is read-only after assignment.
	cc := &apiCacheControl{Type: "ephemeral"}

	req.CacheControl = cc
	if len(req.System) > 0 {
		req.System[len(req.System)-1].CacheControl = cc
	}
	if len(req.Tools) > 0 {
		req.Tools[len(req.Tools)-1].CacheControl = cc
	}
}

// convertMessages maps history to API messages. Tool results whose call is
// not in the preceding assistant message are sent as user text, since the
// API rejects a tool_result without a matching tool_use.
func convertMessages(msgs []relay.Message) ([]apiMessage, error) {
	var result []apiMessage
	lastCalls := map[string]bool{}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case relay.UserMessage:
			result = appendUser(result, convertContentBlocks(m.Content))
			lastCalls = map[string]bool{}
		case relay.AssistantMessage:
			blocks := convertContentBlocks(m.Content)
			if len(blocks) == 0 {
				continue
			}
			lastCalls = map[string]bool{}
			for _, tc := range m.ToolCalls() {
				lastCalls[tc.ID] = true
			}
			result = append(result, apiMessage{Role: "assistant", Content: blocks})
		case relay.ToolMessage:
			for _, b := range m.Content {
				tr, ok := b.(relay.ToolResultBlock)
				if !ok {
					continue
				}
				text, err := resultText(tr.Result)
				if err != nil {
					return nil, fmt.Errorf("tool result %s: %w", tr.ID, err)
				}
				if !lastCalls[tr.ID] {
					result = appendUser(result, []apiContentBlock{{
						Type: "text",
						Text: fmt.Sprintf("Result of tool %s: %s", tr.Name, text),
					}})
					continue
				}
				result = appendUser(result, []apiContentBlock{{
					Type:      "tool_result",
					ToolUseID: tr.ID,
					Content:   []apiContentBlock{{Type: "text", Text: text}},
					IsError:   tr.IsError,
				}})
			}
		}
	}
	return result, nil
}

// appendUser merges consecutive user content into one message.
func appendUser(result []apiMessage, blocks []apiContentBlock) []apiMessage {
	if len(blocks) == 0 {
		return result
	}
	if n := len(result); n > 0 && result[n-1].Role == "user" {
		result[n-1].Content = append(result[n-1].Content, blocks...)
		return result
	}
	return append(result, apiMessage{Role: "user", Content: blocks})
}

func resultText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func convertContentBlocks(blocks []relay.ContentBlock) []apiContentBlock {
	result := make([]apiContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case relay.TextBlock:
			if bl.Text == "" {
				continue
			}
			result = append(result, apiContentBlock{Type: "text", Text: bl.Text})
		case relay.ToolCallBlock:
			input := bl.Arguments
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			result = append(result, apiContentBlock{Type: "tool_use", ID: bl.ID, Name: bl.Name, Input: input})
		}
	}
	return result
}

func convertTools(tools []relay.Tool) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		result[i] = apiTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		}
	}
	return result
}

func parseHTTPError(resp *http.Response) error {
	perr := &relay.ProviderError{
		Provider:   "anthropic",
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		perr.Cause = err
		return perr
	}
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		perr.Message = string(body)
		return perr
	}
	perr.Code = apiErr.Error.Type
	perr.Message = apiErr.Error.Message
	return perr
}
