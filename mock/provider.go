// Package mock provides test doubles for relay interfaces using function fields.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.Provider = (*Provider)(nil)

// Provider is a test double for relay.Provider.
// Set StreamFn before calling Stream.
type Provider struct {
	StreamFn func(ctx context.Context, req relay.Request) (relay.Stream, error)
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	return p.StreamFn(ctx, req)
}

// ErrScriptExhausted is returned by [ScriptedProvider] when it is asked for
// more steps than it was given.
var ErrScriptExhausted = errors.New("mock: script exhausted")

var _ relay.Provider = (*ScriptedProvider)(nil)

// ScriptedProvider serves one scripted step per Stream call and records the
// requests it received.
type ScriptedProvider struct {
	mu    sync.Mutex
	steps [][]relay.Event
	reqs  []relay.Request
}

// Script returns a ScriptedProvider that answers each call with the next
// step's events followed by io.EOF.
func Script(steps ...[]relay.Event) *ScriptedProvider {
	return &ScriptedProvider{steps: steps}
}

// Stream records req and streams the next step.
func (p *ScriptedProvider) Stream(_ context.Context, req relay.Request) (relay.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	if len(p.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	return Events(nil, step...), nil
}

// Requests returns a copy of the recorded requests.
func (p *ScriptedProvider) Requests() []relay.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]relay.Request(nil), p.reqs...)
}
