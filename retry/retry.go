// Package retry opens model streams, healing classified failures and
// backing off between attempts.
package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/heal"
)

// DefaultMaxRetries is the number of retries after the initial attempt.
const DefaultMaxRetries = 3

// Compressor shrinks history before an attempt when it grows too large.
type Compressor interface {
	ShouldCompact(history []relay.Message) bool
	Compact(history []relay.Message) []relay.Message
}

// Observer is called once per retry with the classified error and the
// 1-based attempt number.
type Observer func(err *heal.RetryableError, attempt int)

// Orchestrator drives stream-open attempts against a Provider.
type Orchestrator struct {
	provider   relay.Provider
	maxRetries int
	policy     Policy
	observer   Observer
	compressor Compressor
	healer     *heal.Healer
	sleep      func(ctx context.Context, d time.Duration) error
	rand       func() float64
	restart    func(healing relay.Message)
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRetries sets the retry budget. Negative values are treated as 0.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) { o.maxRetries = max(n, 0) }
}

// WithBackoff sets the backoff policy.
func WithBackoff(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithObserver registers fn to be called before each retry.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithCompressor compacts history before attempts that exceed its threshold.
func WithCompressor(c Compressor) Option {
	return func(o *Orchestrator) { o.compressor = c }
}

// WithHealer replaces the default classifier and healer.
func WithHealer(h *heal.Healer) Option {
	return func(o *Orchestrator) { o.healer = h }
}

// WithRestart registers fn to be called when Run replaces a failed stream,
// after backoff and before the new stream is opened. healing is the message
// appended to history for the retry. Events already handled from the failed
// stream are superseded by the new stream's events.
func WithRestart(fn func(healing relay.Message)) Option {
	return func(o *Orchestrator) { o.restart = fn }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithRand sets the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(o *Orchestrator) { o.rand = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New returns an Orchestrator over p.
func New(p relay.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:   p,
		maxRetries: DefaultMaxRetries,
		policy:     DefaultPolicy(),
		healer:     heal.NewHealer(),
		sleep:      SleepWithContext,
		rand:       rand.Float64,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result is the outcome of Open or Run. Messages is the history as sent on
// the last attempt, including any healing messages.
type Result struct {
	Stream     relay.Stream
	Messages   []relay.Message
	RetryCount int
}

// Open opens a stream, retrying classified failures. Unclassifiable errors
// and the error that exhausts the retry budget are returned unchanged.
func (o *Orchestrator) Open(ctx context.Context, req relay.Request) (*Result, error) {
	res := &Result{Messages: append([]relay.Message(nil), req.Messages...)}
	for {
		s, err := o.open(ctx, req, res)
		if err == nil {
			res.Stream = s
			return res, nil
		}
		if !o.heal(ctx, res, err) {
			return nil, err
		}
	}
}

type state int

const (
	stateIdle state = iota
	stateStreaming
	stateHealing
	stateExhausted
)

// Run opens a stream and feeds every event to handle until the stream ends.
// Failures, whether on open or mid-stream, are healed and the stream is
// reopened with the healed history. Cancellation ends the run gracefully
// with a nil error. A non-nil error from handle stops the run and is
// returned as is, unless ctx has been cancelled.
func (o *Orchestrator) Run(ctx context.Context, req relay.Request, handle func(relay.Event) error) (*Result, error) {
	res := &Result{Messages: append([]relay.Message(nil), req.Messages...)}
	var (
		stream  relay.Stream
		failure error
		st      = stateIdle
	)
	for {
		switch st {
		case stateIdle:
			s, err := o.open(ctx, req, res)
			if err != nil {
				failure, st = err, stateHealing
				continue
			}
			stream, st = s, stateStreaming

		case stateStreaming:
			evt, err := stream.Next()
			if errors.Is(err, io.EOF) {
				_ = stream.Close()
				return res, nil
			}
			if err != nil {
				_ = stream.Close()
				failure, st = err, stateHealing
				continue
			}
			if req.OnChunk != nil {
				req.OnChunk(evt)
			}
			if err := handle(evt); err != nil {
				_ = stream.Close()
				if ctx.Err() != nil {
					return res, nil
				}
				return res, err
			}

		case stateHealing:
			if ctx.Err() != nil || errors.Is(failure, context.Canceled) {
				return res, nil
			}
			if !o.heal(ctx, res, failure) {
				if ctx.Err() != nil {
					return res, nil
				}
				st = stateExhausted
				continue
			}
			if o.restart != nil {
				o.restart(res.Messages[len(res.Messages)-1])
			}
			st = stateIdle

		case stateExhausted:
			return res, failure
		}
	}
}

func (o *Orchestrator) open(ctx context.Context, req relay.Request, res *Result) (relay.Stream, error) {
	if o.compressor != nil && o.compressor.ShouldCompact(res.Messages) {
		before := len(res.Messages)
		res.Messages = o.compressor.Compact(res.Messages)
		o.logger.Info("compacted history", "before", before, "after", len(res.Messages))
	}
	req.Messages = res.Messages
	return o.provider.Stream(ctx, req)
}

// heal classifies err and, when it is retryable and budget remains, appends
// the healing message and sleeps. It reports whether another attempt should
// be made.
func (o *Orchestrator) heal(ctx context.Context, res *Result, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	re, ok := o.healer.ClassifyError(err)
	if !ok {
		return false
	}
	if res.RetryCount >= o.maxRetries {
		o.logger.Warn("retries exhausted", "kind", string(re.Kind), "attempts", res.RetryCount+1, "error", err)
		return false
	}
	res.RetryCount++
	attempt := res.RetryCount
	if o.observer != nil {
		o.observer(re, attempt)
	}
	res.Messages = append(res.Messages, re.Message)
	delay := o.policy.Delay(attempt, o.rand())
	o.logger.Info("retrying stream", "kind", string(re.Kind), "attempt", attempt, "delay", delay)
	return o.sleep(ctx, delay) == nil
}
