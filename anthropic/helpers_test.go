package anthropic_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/anthropic"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	event string
	data  string
}

// sseResponse serves its events as one text/event-stream body.
type sseResponse struct {
	events []sseEvent
}

func (s sseResponse) body() string {
	var b strings.Builder
	for _, e := range s.events {
		fmt.Fprintf(&b, "event: %s\ndata: %s\n\n", e.event, e.data)
	}
	return b.String()
}

func (s sseResponse) handler() http.HandlerFunc {
	body := s.body()
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}
}

const messageStart = `{"type":"message_start","message":{"id":"msg_1","role":"assistant","content":[],"usage":{"input_tokens":10,"output_tokens":1}}}`

func textStart(index int) sseEvent {
	return sseEvent{"content_block_start", fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, index)}
}

func textDelta(index int, text string) sseEvent {
	return sseEvent{"content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":%q}}`, index, text)}
}

func blockStop(index int) sseEvent {
	return sseEvent{"content_block_stop", fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, index)}
}

func textStreamResponse() sseResponse {
	return sseResponse{events: []sseEvent{
		{"message_start", messageStart},
		textStart(0),
		{"ping", `{"type":"ping"}`},
		textDelta(0, "Hello"),
		textDelta(0, " world"),
		blockStop(0),
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}}
}

func userRequest() relay.Request {
	return relay.Request{Messages: []relay.Message{relay.NewUserText("Hi")}}
}

func streamFromSSE(t *testing.T, resp sseResponse) relay.Stream {
	t.Helper()
	srv := httptest.NewServer(resp.handler())
	t.Cleanup(srv.Close)
	s, err := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL)).Stream(context.Background(), userRequest())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// collectEvents drains s. The returned error is nil when the stream ended
// with io.EOF.
func collectEvents(t *testing.T, s relay.Stream) ([]relay.Event, error) {
	t.Helper()
	var events []relay.Event
	for {
		evt, err := s.Next()
		switch {
		case errors.Is(err, io.EOF):
			return events, nil
		case err != nil:
			return events, err
		}
		events = append(events, evt)
	}
}
