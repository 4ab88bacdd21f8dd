package json

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fwojciec/relay"
)

// ErrReplayExhausted is returned by Replay.Stream once every recorded step
// has been served.
var ErrReplayExhausted = errors.New("json: replay exhausted")

// Interface compliance check.
var _ relay.Provider = (*Replay)(nil)

// Replay is a Provider that serves recorded steps from a JSON lines log. Each
// step_finish line closes a step; each call to Stream serves the next step.
// An error line ends its step with that message as the stream error.
type Replay struct {
	mu    sync.Mutex
	steps []step
}

type step struct {
	events []relay.Event
	err    error
}

// NewReplay reads a JSON lines event log from r. Blank lines are skipped.
func NewReplay(r io.Reader) (*Replay, error) {
	var (
		steps []step
		cur   step
		open  bool
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var dto eventDTO
		if err := json.Unmarshal(line, &dto); err != nil {
			return nil, fmt.Errorf("json: line %d: %w", n, err)
		}
		if dto.Type == typeError {
			cur.err = errors.New(dto.Message)
			steps, cur, open = append(steps, cur), step{}, false
			continue
		}
		evt, err := dto.event()
		if err != nil {
			return nil, fmt.Errorf("json: line %d: %w", n, err)
		}
		cur.events = append(cur.events, evt)
		open = true
		if _, ok := evt.(relay.EventStepFinish); ok {
			steps, cur, open = append(steps, cur), step{}, false
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if open {
		steps = append(steps, cur)
	}
	return &Replay{steps: steps}, nil
}

// Remaining reports how many steps have not been served yet.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

// Stream serves the next recorded step.
func (r *Replay) Stream(ctx context.Context, _ relay.Request) (relay.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.steps) == 0 {
		return nil, ErrReplayExhausted
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	return &replayStream{ctx: ctx, step: s}, nil
}

type replayStream struct {
	ctx    context.Context
	step   step
	pos    int
	closed bool
}

func (s *replayStream) Next() (relay.Event, error) {
	if s.closed {
		return nil, fmt.Errorf("json: %w", relay.ErrStreamClosed)
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos < len(s.step.events) {
		evt := s.step.events[s.pos]
		s.pos++
		return evt, nil
	}
	if s.step.err != nil {
		return nil, s.step.err
	}
	return nil, io.EOF
}

func (s *replayStream) Close() error {
	s.closed = true
	return nil
}
