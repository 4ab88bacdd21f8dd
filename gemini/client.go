package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/relay"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ relay.Provider = (*Client)(nil)

// Client implements [relay.Provider] for the Google Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID. Default is gemini-3.1-pro-preview.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{
		client: gc,
		model:  defaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Stream sends a streaming request to the Gemini API and returns a
// [relay.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}

	contents, err := ConvertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	config := BuildConfig(req)

	iter := c.client.Models.GenerateContentStream(ctx, model, contents, config)
	return NewStreamFromIter(ctx, iter), nil
}

// BuildConfig maps request settings onto a generation config.
func BuildConfig(req relay.Request) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Tools:           ConvertTools(req.Tools),
	}
	if len(config.Tools) > 0 {
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: convertToolChoice(req.ToolChoice)},
		}
	}

	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}

	return config
}

func convertToolChoice(tc relay.ToolChoice) genai.FunctionCallingConfigMode {
	switch tc {
	case relay.ToolChoiceRequired:
		return genai.FunctionCallingConfigModeAny
	case relay.ToolChoiceNone:
		return genai.FunctionCallingConfigModeNone
	default:
		return genai.FunctionCallingConfigModeAuto
	}
}

// ConvertMessages converts relay Messages to genai Contents. A tool result
// whose call is not in the preceding model turn, such as a healing result
// for a rejected call, is sent as user text.
// Exported for testing.
func ConvertMessages(msgs []relay.Message) ([]*genai.Content, error) {
	var result []*genai.Content
	calls := map[string]bool{}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case relay.UserMessage:
			result = appendContent(result, genai.RoleUser, convertParts(m.Content))
			clear(calls)
		case relay.AssistantMessage:
			parts := convertParts(m.Content)
			if len(parts) == 0 {
				continue
			}
			clear(calls)
			for _, tc := range m.ToolCalls() {
				calls[tc.ID] = true
			}
			result = appendContent(result, genai.RoleModel, parts)
		case relay.ToolMessage:
			var parts []*genai.Part
			for _, b := range m.Content {
				tr, ok := b.(relay.ToolResultBlock)
				if !ok {
					continue
				}
				resp, err := responseMap(tr)
				if err != nil {
					return nil, fmt.Errorf("tool result %s: %w", tr.ID, err)
				}
				if !calls[tr.ID] {
					text, err := json.Marshal(resp)
					if err != nil {
						return nil, fmt.Errorf("tool result %s: %w", tr.ID, err)
					}
					parts = append(parts, &genai.Part{Text: fmt.Sprintf("Result of tool %s: %s", tr.Name, text)})
					continue
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       tr.ID,
						Name:     tr.Name,
						Response: resp,
					},
				})
			}
			result = appendContent(result, genai.RoleUser, parts)
		}
	}
	return result, nil
}

// appendContent merges consecutive parts of the same role into one Content.
func appendContent(result []*genai.Content, role string, parts []*genai.Part) []*genai.Content {
	if len(parts) == 0 {
		return result
	}
	if n := len(result); n > 0 && result[n-1].Role == role {
		result[n-1].Parts = append(result[n-1].Parts, parts...)
		return result
	}
	return append(result, &genai.Content{Role: role, Parts: parts})
}

// responseMap places the result under "error" or "output". Structured values
// are passed through as decoded JSON.
func responseMap(tr relay.ToolResultBlock) (map[string]any, error) {
	key := "output"
	if tr.IsError {
		key = "error"
	}
	if s, ok := tr.Result.(string); ok {
		return map[string]any{key: s}, nil
	}
	b, err := json.Marshal(tr.Result)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return map[string]any{key: v}, nil
}

func convertParts(blocks []relay.ContentBlock) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch bl := b.(type) {
		case relay.TextBlock:
			if bl.Text == "" {
				continue
			}
			parts = append(parts, &genai.Part{Text: bl.Text})
		case relay.ToolCallBlock:
			// Arguments hold a JSON object; anything else is sent as empty args.
			var args map[string]any
			_ = json.Unmarshal(bl.Arguments, &args)
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   bl.ID,
					Name: bl.Name,
					Args: args,
				},
			})
		}
	}
	return parts
}

// ConvertTools converts relay Tools to genai Tools.
// Exported for testing.
func ConvertTools(tools []relay.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		// Parameters is json.RawMessage, always valid JSON from domain types.
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
