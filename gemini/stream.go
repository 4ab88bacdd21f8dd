package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/fwojciec/relay"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// stream implements [relay.Stream] by wrapping the genai SDK's streaming
// iterator. One response chunk may carry several parts, so events are queued
// and handed out one per Next call.
type stream struct {
	ctx     context.Context
	pull    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	pending []relay.Event
	reason  genai.FinishReason
	usage   relay.Usage
	calls   int
	done    bool
	closed  bool
	err     error
}

// Interface compliance check.
var _ relay.Stream = (*stream)(nil)

// NewStreamFromIter wraps a genai response iterator into a [relay.Stream].
// Exported for testing.
func NewStreamFromIter(ctx context.Context, iterFn iter.Seq2[*genai.GenerateContentResponse, error]) relay.Stream {
	next, stop := iter.Pull2(iterFn)
	return &stream{ctx: ctx, pull: next, stop: stop}
}

// Next returns the next event. The stream ends with one EventStepFinish
// followed by io.EOF.
func (s *stream) Next() (relay.Event, error) {
	for {
		switch {
		case s.closed:
			return nil, fmt.Errorf("gemini: %w", relay.ErrStreamClosed)
		case len(s.pending) > 0:
			evt := s.pending[0]
			s.pending = s.pending[1:]
			return evt, nil
		case s.err != nil:
			return nil, s.err
		case s.done:
			return nil, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			s.err = fmt.Errorf("gemini: %w", err)
			continue
		}

		chunk, err, ok := s.pull()
		switch {
		case !ok:
			s.done = true
			s.pending = append(s.pending, relay.EventStepFinish{Reason: s.finishReason(), Usage: s.usage})
		case err != nil:
			s.err = convertError(err)
		default:
			if err := s.processChunk(chunk); err != nil {
				s.err = err
			}
		}
	}
}

// Close stops the underlying iterator.
func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	return nil
}

func (s *stream) processChunk(chunk *genai.GenerateContentResponse) error {
	if chunk == nil {
		return nil
	}
	if u := chunk.UsageMetadata; u != nil {
		s.usage = relay.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	if len(chunk.Candidates) == 0 {
		if fb := chunk.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return &relay.ProviderError{
				Provider: providerName,
				Code:     "content_filter",
				Message:  fmt.Sprintf("prompt blocked: %s", fb.BlockReason),
			}
		}
		return nil
	}

	cand := chunk.Candidates[0]
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if err := s.processPart(part); err != nil {
				return err
			}
		}
	}
	if cand.FinishReason != "" {
		s.reason = cand.FinishReason
	}
	if blocked(cand.FinishReason) {
		return &relay.ProviderError{
			Provider: providerName,
			Code:     "content_filter",
			Message:  fmt.Sprintf("response blocked: %s", cand.FinishReason),
		}
	}
	return nil
}

func (s *stream) processPart(part *genai.Part) error {
	switch {
	case part == nil || part.Thought:
		return nil
	case part.FunctionCall != nil:
		fc := part.FunctionCall
		id := fc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		args := json.RawMessage(`{}`)
		if len(fc.Args) > 0 {
			b, err := json.Marshal(fc.Args)
			if err != nil {
				return fmt.Errorf("gemini: invalid tool call arguments for %s: %w", fc.Name, err)
			}
			args = b
		}
		s.calls++
		s.pending = append(s.pending,
			relay.EventToolCallStreamingStart{ID: id, Name: fc.Name},
			relay.EventToolCall{ID: id, Name: fc.Name, Arguments: args},
		)
	case part.Text != "":
		s.pending = append(s.pending, relay.EventTextDelta{Delta: part.Text})
	}
	return nil
}

func (s *stream) finishReason() relay.FinishReason {
	switch s.reason {
	case genai.FinishReasonMaxTokens:
		return relay.FinishLength
	case genai.FinishReasonMalformedFunctionCall, genai.FinishReasonUnexpectedToolCall:
		return relay.FinishError
	case "", genai.FinishReasonStop:
		if s.calls > 0 {
			return relay.FinishToolCalls
		}
		return relay.FinishStop
	default:
		return relay.FinishUnknown
	}
}

func blocked(r genai.FinishReason) bool {
	switch r {
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return true
	}
	return false
}

// convertError maps SDK errors onto [relay.ProviderError] so status codes
// survive classification.
func convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &relay.ProviderError{
			Provider:   providerName,
			StatusCode: apiErr.Code,
			Code:       apiErr.Status,
			Message:    apiErr.Message,
			Retryable:  apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500,
		}
	}
	return fmt.Errorf("gemini: %w", err)
}
