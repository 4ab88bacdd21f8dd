// Package jsonschema validates streamed tool calls against the JSON Schemas of
// the offered tools. Calls to unknown tools surface as
// [*relay.NoSuchToolError] and schema violations as
// [*relay.InvalidToolArgumentsError], both returned from Stream.Next so the
// retry orchestrator can heal them.
package jsonschema

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fwojciec/relay"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Interface compliance check.
var _ relay.Provider = (*Guard)(nil)

// Guard is a Provider middleware that validates tool calls.
type Guard struct {
	next    relay.Provider
	printer *message.Printer
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

// Option configures a Guard.
type Option func(*Guard)

// WithLanguage sets the language of validation issue messages.
func WithLanguage(tag language.Tag) Option {
	return func(g *Guard) { g.printer = message.NewPrinter(tag) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// New wraps next.
func New(next relay.Provider, opts ...Option) *Guard {
	g := &Guard{
		next:    next,
		printer: message.NewPrinter(language.English),
		logger:  slog.Default(),
		cache:   make(map[string]*jsonschema.Schema),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stream opens the wrapped stream. Tool schemas are compiled up front, so a
// malformed schema fails here rather than mid-stream.
func (g *Guard) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	schemas := make(map[string]*jsonschema.Schema, len(req.Tools))
	for _, t := range req.Tools {
		sch, err := g.compile(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("jsonschema: tool %s: %w", t.Name, err)
		}
		schemas[t.Name] = sch
	}
	s, err := g.next.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &stream{
		inner:   s,
		schemas: schemas,
		names:   req.ToolNames(),
		printer: g.printer,
		logger:  g.logger,
	}, nil
}

// compile returns the compiled schema, or nil for an empty schema.
func (g *Guard) compile(raw []byte) (*jsonschema.Schema, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	key := string(raw)

	g.mu.Lock()
	defer g.mu.Unlock()
	if sch, ok := g.cache[key]; ok {
		return sch, nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	g.cache[key] = sch
	return sch, nil
}

type stream struct {
	inner   relay.Stream
	schemas map[string]*jsonschema.Schema
	names   []string
	printer *message.Printer
	logger  *slog.Logger
	err     error
}

func (s *stream) Next() (relay.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	evt, err := s.inner.Next()
	if err != nil {
		return nil, err
	}
	call, ok := evt.(relay.EventToolCall)
	if !ok {
		return evt, nil
	}
	if err := s.check(call); err != nil {
		s.logger.Debug("tool call rejected", "tool_call_id", call.ID, "tool", call.Name, "error", err)
		s.err = err
		return nil, err
	}
	return evt, nil
}

func (s *stream) Close() error {
	return s.inner.Close()
}

func (s *stream) check(call relay.EventToolCall) error {
	sch, known := s.schemas[call.Name]
	if !known {
		return &relay.NoSuchToolError{
			ToolCallID:     call.ID,
			ToolName:       call.Name,
			AvailableTools: s.names,
		}
	}
	if sch == nil {
		return nil
	}
	invalid := func(issues []relay.ValidationIssue, cause error) error {
		return &relay.InvalidToolArgumentsError{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Arguments:  string(call.Arguments),
			Issues:     issues,
			Cause:      cause,
		}
	}

	raw := call.Arguments
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte(`{}`)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return invalid([]relay.ValidationIssue{{Message: s.printer.Sprintf("arguments are not valid JSON: %v", err)}}, err)
	}
	err = sch.Validate(inst)
	var verr *jsonschema.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr):
		return invalid(Issues(verr, s.printer), err)
	default:
		return invalid(nil, err)
	}
}

// Issues flattens a validation error into one issue per failing leaf, with
// messages rendered by p.
func Issues(verr *jsonschema.ValidationError, p *message.Printer) []relay.ValidationIssue {
	var issues []relay.ValidationIssue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			issues = append(issues, relay.ValidationIssue{
				Path:    pointer(e.InstanceLocation),
				Message: e.ErrorKind.LocalizedString(p),
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return issues
}

func pointer(loc []string) string {
	if len(loc) == 0 {
		return ""
	}
	return "/" + strings.Join(loc, "/")
}
