package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalSSE = "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\",\"type\":\"message\",\"role\":\"assistant\",\"content\":[],\"model\":\"m\",\"stop_reason\":null,\"stop_sequence\":null,\"usage\":{\"input_tokens\":0,\"output_tokens\":0}}}\n\nevent: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":0}}\n\nevent: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"

// captureBody sends req and returns the decoded JSON request body.
func captureBody(t *testing.T, req relay.Request) map[string]any {
	t.Helper()
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(minimalSSE))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	s, err := client.Stream(context.Background(), req)
	require.NoError(t, err)
	defer s.Close()

	var body map[string]any
	require.NoError(t, json.Unmarshal(captured, &body))
	return body
}

func TestClient_RequestFormat(t *testing.T) {
	t.Parallel()

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)

		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-api-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(minimalSSE))
	}))
	defer srv.Close()

	temp := 0.7
	client := anthropic.New("test-api-key", anthropic.WithBaseURL(srv.URL))
	s, err := client.Stream(context.Background(), relay.Request{
		Model:        "claude-opus-4-20250514",
		SystemPrompt: "You are helpful.",
		Messages: []relay.Message{
			relay.NewUserText("Hello"),
			relay.AssistantMessage{Content: []relay.ContentBlock{relay.TextBlock{Text: "Hi"}}},
			relay.NewUserText("Thanks"),
		},
		Tools: []relay.Tool{
			{Name: "execute_sql", Description: "Run SQL", Parameters: json.RawMessage(`{"type":"object"}`)},
		},
		ToolChoice:  relay.ToolChoiceRequired,
		MaxTokens:   1024,
		Temperature: &temp,
	})
	require.NoError(t, err)
	defer s.Close()

	var body map[string]any
	require.NoError(t, json.Unmarshal(captured, &body))

	assert.Equal(t, "claude-opus-4-20250514", body["model"])
	assert.Equal(t, float64(1024), body["max_tokens"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, 0.7, body["temperature"])
	assert.Equal(t, map[string]any{"type": "any"}, body["tool_choice"])

	system := body["system"].([]any)
	require.Len(t, system, 1)
	assert.Equal(t, "You are helpful.", system[0].(map[string]any)["text"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	msg0 := msgs[0].(map[string]any)
	assert.Equal(t, "user", msg0["role"])
	block0 := msg0["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "text", block0["type"])
	assert.Equal(t, "Hello", block0["text"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	tool0 := tools[0].(map[string]any)
	assert.Equal(t, "execute_sql", tool0["name"])
	assert.Equal(t, "Run SQL", tool0["description"])
	assert.Equal(t, map[string]any{"type": "ephemeral"}, tool0["cache_control"])
}

func TestClient_DefaultModelAndMaxTokens(t *testing.T) {
	t.Parallel()

	body := captureBody(t, userRequest())

	assert.Equal(t, "claude-sonnet-4-20250514", body["model"])
	assert.Equal(t, float64(8192), body["max_tokens"])
	assert.NotContains(t, body, "tool_choice", "tool choice is only sent with tools")
}

func TestClient_ToolResultMessagesMerged(t *testing.T) {
	t.Parallel()

	body := captureBody(t, relay.Request{
		Messages: []relay.Message{
			relay.NewUserText("Hi"),
			relay.AssistantMessage{Content: []relay.ContentBlock{
				relay.ToolCallBlock{ID: "tc_1", Name: "execute_sql", Arguments: json.RawMessage(`{"statements":["SELECT 1"]}`)},
				relay.ToolCallBlock{ID: "tc_2", Name: "find_files", Arguments: json.RawMessage(`{"patterns":["*.go"]}`)},
			}},
			relay.NewToolResult("tc_1", "execute_sql", "1 row", false),
			relay.NewToolResult("tc_2", "find_files", map[string]any{"error": "denied"}, true),
		},
	})

	msgs := body["messages"].([]any)
	// user, assistant, merged tool results
	require.Len(t, msgs, 3)

	toolResultMsg := msgs[2].(map[string]any)
	assert.Equal(t, "user", toolResultMsg["role"])
	blocks := toolResultMsg["content"].([]any)
	require.Len(t, blocks, 2)

	block0 := blocks[0].(map[string]any)
	assert.Equal(t, "tool_result", block0["type"])
	assert.Equal(t, "tc_1", block0["tool_use_id"])
	assert.Equal(t, "1 row", block0["content"].([]any)[0].(map[string]any)["text"])

	block1 := blocks[1].(map[string]any)
	assert.Equal(t, "tc_2", block1["tool_use_id"])
	assert.Equal(t, true, block1["is_error"])
	assert.Equal(t, `{"error":"denied"}`, block1["content"].([]any)[0].(map[string]any)["text"])
}

func TestClient_OrphanToolResultBecomesText(t *testing.T) {
	t.Parallel()

	body := captureBody(t, relay.Request{
		Messages: []relay.Message{
			relay.NewUserText("Hi"),
			relay.NewToolResult("tc_9", "think", "noted", false),
		},
	})

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	blocks := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Result of tool think: noted", blocks[1].(map[string]any)["text"])
}

func TestClient_EmptyToolInput(t *testing.T) {
	t.Parallel()

	body := captureBody(t, relay.Request{
		Messages: []relay.Message{
			relay.NewUserText("Hi"),
			relay.AssistantMessage{Content: []relay.ContentBlock{
				relay.TextBlock{},
				relay.ToolCallBlock{ID: "tc_1", Name: "think"},
			}},
			relay.NewToolResult("tc_1", "think", "ok", false),
		},
	})

	blocks := body["messages"].([]any)[1].(map[string]any)["content"].([]any)
	require.Len(t, blocks, 1, "empty text is dropped")
	assert.Equal(t, map[string]any{}, blocks[0].(map[string]any)["input"])
}

func TestClient_InvalidRequest(t *testing.T) {
	t.Parallel()

	client := anthropic.New("test-key", anthropic.WithBaseURL("http://127.0.0.1:0"))
	_, err := client.Stream(context.Background(), relay.Request{MaxTokens: -1})
	assert.ErrorIs(t, err, relay.ErrValidation)
}

func TestClient_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: integer above 1 expected"}}`))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	_, err := client.Stream(context.Background(), userRequest())
	var perr *relay.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "invalid_request_error", perr.Code)
	assert.False(t, perr.Retryable)
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestClient_HTTPErrorNonJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	_, err := client.Stream(context.Background(), userRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	var perr *relay.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable)
}
