package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/relay"
)

// maxLineSize bounds one SSE line. Tool input arrives in small
// input_json_delta fragments, so this is generous.
const maxLineSize = 1 << 20

var _ relay.Stream = (*stream)(nil)

// stream turns an SSE response body into relay events. Events that carry no
// semantic content, like ping and message_start, are consumed silently.
type stream struct {
	ctx     context.Context
	body    io.ReadCloser
	lines   *bufio.Scanner
	blocks  map[int]*block
	usage   relay.Usage
	stopped bool // message_stop seen
	closed  bool
	err     error
}

// block accumulates one content block by index.
type block struct {
	kind  string
	id    string
	name  string
	input strings.Builder
}

// event is one dispatched SSE event.
type event struct {
	name string
	data string
}

func newStream(ctx context.Context, body io.ReadCloser) *stream {
	lines := bufio.NewScanner(body)
	lines.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &stream{ctx: ctx, body: body, lines: lines, blocks: map[int]*block{}}
}

// Next returns the next event, or io.EOF after message_stop. Errors are
// sticky.
func (s *stream) Next() (relay.Event, error) {
	if s.closed {
		return nil, fmt.Errorf("anthropic: %w", relay.ErrStreamClosed)
	}
	for s.err == nil && !s.stopped {
		e, err := s.read()
		if err == nil {
			var evt relay.Event
			evt, err = s.dispatch(e)
			if err == nil && evt != nil {
				return evt, nil
			}
		}
		if err != nil {
			s.fail(err)
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

// Close closes the response body. It is safe to call more than once.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (s *stream) fail(err error) {
	switch {
	case s.ctx.Err() != nil:
		s.err = fmt.Errorf("anthropic: %w", s.ctx.Err())
	case errors.Is(err, io.EOF):
		s.err = &relay.ProviderError{Provider: "anthropic", Message: "stream ended unexpectedly", Retryable: true}
	default:
		s.err = err
	}
}

// read collects lines up to the blank line that ends an event. Comment lines
// and fields other than event and data are skipped.
func (s *stream) read() (event, error) {
	var e event
	var data []string
	for s.lines.Scan() {
		line := s.lines.Text()
		if line == "" {
			if len(data) > 0 {
				e.data = strings.Join(data, "\n")
				return e, nil
			}
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			e.name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := s.lines.Err(); err != nil {
		return event{}, fmt.Errorf("anthropic: %w", err)
	}
	if len(data) > 0 {
		e.data = strings.Join(data, "\n")
		return e, nil
	}
	return event{}, io.EOF
}

func decode[T any](e event) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(e.data), &v); err != nil {
		return v, fmt.Errorf("anthropic: failed to parse %s: %w", e.name, err)
	}
	return v, nil
}

// dispatch applies e to the stream state. A nil event means nothing is
// surfaced for e.
func (s *stream) dispatch(e event) (relay.Event, error) {
	switch e.name {
	case "message_start":
		v, err := decode[sseMessageStart](e)
		if err != nil {
			return nil, err
		}
		s.usage.InputTokens, _ = v.Message.Usage.input()
		return nil, nil
	case "content_block_start":
		v, err := decode[sseContentBlockStart](e)
		if err != nil {
			return nil, err
		}
		return s.startBlock(v), nil
	case "content_block_delta":
		v, err := decode[sseContentBlockDelta](e)
		if err != nil {
			return nil, err
		}
		return s.extendBlock(v)
	case "content_block_stop":
		v, err := decode[sseContentBlockStop](e)
		if err != nil {
			return nil, err
		}
		return s.stopBlock(v.Index)
	case "message_delta":
		v, err := decode[sseMessageDelta](e)
		if err != nil {
			return nil, err
		}
		return s.finishStep(v), nil
	case "message_stop":
		s.stopped = true
		return nil, nil
	case "error":
		v, err := decode[apiError](e)
		if err != nil {
			return nil, err
		}
		return nil, &relay.ProviderError{
			Provider:  "anthropic",
			Code:      v.Error.Type,
			Message:   v.Error.Message,
			Retryable: v.Error.Type == "overloaded_error" || v.Error.Type == "api_error",
		}
	default:
		// ping and event types added later.
		return nil, nil
	}
}

func (s *stream) startBlock(v sseContentBlockStart) relay.Event {
	b := &block{kind: v.ContentBlock.Type, id: v.ContentBlock.ID, name: v.ContentBlock.Name}
	s.blocks[v.Index] = b
	if b.kind != "tool_use" {
		return nil
	}
	return relay.EventToolCallStreamingStart{ID: b.id, Name: b.name}
}

func (s *stream) extendBlock(v sseContentBlockDelta) (relay.Event, error) {
	b, ok := s.blocks[v.Index]
	if !ok {
		return nil, fmt.Errorf("anthropic: delta for unknown block index %d", v.Index)
	}
	switch v.Delta.Type {
	case "text_delta":
		return relay.EventTextDelta{Delta: v.Delta.Text}, nil
	case "input_json_delta":
		b.input.WriteString(v.Delta.PartialJSON)
		return relay.EventToolCallDelta{ID: b.id, Delta: v.Delta.PartialJSON}, nil
	}
	// Thinking and signature deltas stay internal.
	return nil, nil
}

func (s *stream) stopBlock(index int) (relay.Event, error) {
	b, ok := s.blocks[index]
	if !ok {
		return nil, fmt.Errorf("anthropic: stop for unknown block index %d", index)
	}
	if b.kind != "tool_use" {
		return nil, nil
	}
	args := b.input.String()
	if args == "" {
		args = "{}"
	}
	return relay.EventToolCall{ID: b.id, Name: b.name, Arguments: json.RawMessage(args)}, nil
}

func (s *stream) finishStep(v sseMessageDelta) relay.Event {
	s.usage.OutputTokens = v.Usage.OutputTokens
	if in, ok := v.Usage.input(); ok {
		s.usage.InputTokens = in
	}
	if v.Delta.StopReason == nil {
		return nil
	}
	return relay.EventStepFinish{Reason: stopReason(*v.Delta.StopReason), Usage: s.usage}
}

func stopReason(raw string) relay.FinishReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return relay.FinishStop
	case "max_tokens":
		return relay.FinishLength
	case "tool_use":
		return relay.FinishToolCalls
	case "refusal":
		return relay.FinishContentFilter
	}
	return relay.FinishUnknown
}
