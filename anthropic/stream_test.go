package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_TextResponse(t *testing.T) {
	t.Parallel()
	s := streamFromSSE(t, textStreamResponse())

	events, err := collectEvents(t, s)
	require.NoError(t, err)

	assert.Equal(t, []relay.Event{
		relay.EventTextDelta{Delta: "Hello"},
		relay.EventTextDelta{Delta: " world"},
		relay.EventStepFinish{Reason: relay.FinishStop, Usage: relay.Usage{InputTokens: 10, OutputTokens: 5}},
	}, events)
}

func TestStream_ToolUse(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		textStart(0),
		textDelta(0, "Let me check."),
		blockStop(0),
		{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"execute_sql","input":{}}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"statements\":"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":" [\"SELECT 1\"]}"}}`},
		blockStop(1),
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":42}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}}

	events, err := collectEvents(t, streamFromSSE(t, resp))
	require.NoError(t, err)

	assert.Equal(t, []relay.Event{
		relay.EventTextDelta{Delta: "Let me check."},
		relay.EventToolCallStreamingStart{ID: "toolu_1", Name: "execute_sql"},
		relay.EventToolCallDelta{ID: "toolu_1", Delta: `{"statements":`},
		relay.EventToolCallDelta{ID: "toolu_1", Delta: ` ["SELECT 1"]}`},
		relay.EventToolCall{ID: "toolu_1", Name: "execute_sql", Arguments: json.RawMessage(`{"statements": ["SELECT 1"]}`)},
		relay.EventStepFinish{Reason: relay.FinishToolCalls, Usage: relay.Usage{InputTokens: 10, OutputTokens: 42}},
	}, events)
}

func TestStream_ToolUseWithoutInput(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tc_1","name":"think","input":{}}}`},
		blockStop(0),
		{"message_stop", `{"type":"message_stop"}`},
	}}

	events, err := collectEvents(t, streamFromSSE(t, resp))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, relay.EventToolCall{ID: "tc_1", Name: "think", Arguments: json.RawMessage(`{}`)}, events[1])
}

func TestStream_ThinkingIsNotSurfaced(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"Let me think..."}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig123"}}`},
		blockStop(0),
		textStart(1),
		textDelta(1, "42."),
		blockStop(1),
		{"message_stop", `{"type":"message_stop"}`},
	}}

	events, err := collectEvents(t, streamFromSSE(t, resp))
	require.NoError(t, err)
	assert.Equal(t, []relay.Event{relay.EventTextDelta{Delta: "42."}}, events)
}

func TestStream_StopReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want relay.FinishReason
	}{
		{"end_turn", relay.FinishStop},
		{"stop_sequence", relay.FinishStop},
		{"max_tokens", relay.FinishLength},
		{"tool_use", relay.FinishToolCalls},
		{"refusal", relay.FinishContentFilter},
		{"something_new", relay.FinishUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			resp := sseResponse{events: []sseEvent{
				{"message_start", messageStart},
				{"message_delta", fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":%q},"usage":{"output_tokens":1}}`, tt.raw)},
				{"message_stop", `{"type":"message_stop"}`},
			}}
			events, err := collectEvents(t, streamFromSSE(t, resp))
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0].(relay.EventStepFinish).Reason)
		})
	}
}

func TestStream_DeltaInputTokens(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7,"input_tokens":25}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}}

	events, err := collectEvents(t, streamFromSSE(t, resp))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, relay.Usage{InputTokens: 25, OutputTokens: 7}, events[0].(relay.EventStepFinish).Usage)
}

func TestStream_CachedInputTokens(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", `{"type":"message_start","message":{"usage":{"input_tokens":4,"cache_creation_input_tokens":100,"cache_read_input_tokens":900,"output_tokens":1}}}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}}

	events, err := collectEvents(t, streamFromSSE(t, resp))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, relay.Usage{InputTokens: 1004, OutputTokens: 3}, events[0].(relay.EventStepFinish).Usage)
}

func TestStream_EOFAfterCompletion(t *testing.T) {
	t.Parallel()
	s := streamFromSSE(t, textStreamResponse())
	_, err := collectEvents(t, s)
	require.NoError(t, err)

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestStream_NextAfterClose(t *testing.T) {
	t.Parallel()
	s := streamFromSSE(t, textStreamResponse())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Next()
	assert.ErrorIs(t, err, relay.ErrStreamClosed)
}

func TestStream_SSEError(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		{"error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`},
	}}

	s := streamFromSSE(t, resp)
	_, err := s.Next()
	var perr *relay.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "overloaded_error", perr.Code)
	assert.Equal(t, "Overloaded", perr.Message)
	assert.True(t, perr.Retryable)

	_, again := s.Next()
	assert.Equal(t, err, again, "terminal error is sticky")
}

func TestStream_UnexpectedEnd(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		textStart(0),
		textDelta(0, "Hel"),
	}}

	events, err := collectEvents(t, streamFromSSE(t, resp))
	assert.Equal(t, []relay.Event{relay.EventTextDelta{Delta: "Hel"}}, events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream ended unexpectedly")
}

func TestStream_MalformedEvent(t *testing.T) {
	t.Parallel()
	resp := sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		textDelta(3, "x"),
	}}

	_, err := collectEvents(t, streamFromSSE(t, resp))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown block index 3")
}

func TestStream_ContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "event: message_start\ndata: %s\n\n", messageStart)
		fmt.Fprint(w, "event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	s, err := client.Stream(ctx, userRequest())
	require.NoError(t, err)
	defer s.Close()

	evt, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, relay.EventTextDelta{Delta: "Hi"}, evt)

	cancel()
	_, err = s.Next()
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
