package mock

import (
	"io"

	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.Stream = (*Stream)(nil)

// Stream is a test double for relay.Stream.
// Set the function fields for the methods you need. NextFn panics when nil
// to catch missing setup. CloseFn is nil-safe (no-op) because test code
// commonly calls defer stream.Close().
type Stream struct {
	NextFn  func() (relay.Event, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (relay.Event, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Events returns a Stream that yields events in order and then err, or
// io.EOF when err is nil.
func Events(err error, events ...relay.Event) *Stream {
	i := 0
	return &Stream{
		NextFn: func() (relay.Event, error) {
			if i < len(events) {
				e := events[i]
				i++
				return e, nil
			}
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		},
	}
}
