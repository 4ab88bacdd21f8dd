// Package turn accumulates one agent turn's event stream into conversation
// history and the reasoning and response projections derived from it.
package turn

import (
	"encoding/json"
	"strings"
)

type pending struct {
	name   string
	raw    strings.Builder
	args   map[string]any
	parsed bool
}

// Tracker maps in-flight tool-call ids to their accumulating argument text.
// A given id has at most one entry at a time.
type Tracker struct {
	calls map[string]*pending
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{calls: make(map[string]*pending)}
}

// Start registers id with empty argument text. It reports false and leaves
// the existing entry untouched when id is already tracked.
func (t *Tracker) Start(id, name string) bool {
	if _, ok := t.calls[id]; ok {
		return false
	}
	t.calls[id] = &pending{name: name}
	return true
}

// AppendDelta concatenates text to id's argument text and attempts to parse
// the accumulated text as a JSON object. Partial JSON is expected; the entry
// simply stays unparsed. An unknown id is started with an empty name.
func (t *Tracker) AppendDelta(id, text string) (map[string]any, bool) {
	p, ok := t.calls[id]
	if !ok {
		p = &pending{}
		t.calls[id] = p
	}
	p.raw.WriteString(text)
	p.args, p.parsed = parseObject(p.raw.String())
	return p.args, p.parsed
}

// Set records a complete call in one step. A name already known for id is
// kept when name is empty.
func (t *Tracker) Set(id, name string, raw json.RawMessage) (map[string]any, bool) {
	p, ok := t.calls[id]
	if !ok {
		p = &pending{}
		t.calls[id] = p
	}
	if name != "" {
		p.name = name
	}
	p.raw.Reset()
	p.raw.Write(raw)
	p.args, p.parsed = parseObject(p.raw.String())
	return p.args, p.parsed
}

// Arguments returns the best-effort parsed arguments for id.
func (t *Tracker) Arguments(id string) (map[string]any, bool) {
	p, ok := t.calls[id]
	if !ok || !p.parsed {
		return nil, false
	}
	return p.args, true
}

// Raw returns the accumulated argument text for id.
func (t *Tracker) Raw(id string) string {
	if p, ok := t.calls[id]; ok {
		return p.raw.String()
	}
	return ""
}

// Name returns the tool name registered for id.
func (t *Tracker) Name(id string) string {
	if p, ok := t.calls[id]; ok {
		return p.name
	}
	return ""
}

// Remove forgets id.
func (t *Tracker) Remove(id string) {
	delete(t.calls, id)
}

// Len returns the number of tracked calls.
func (t *Tracker) Len() int {
	return len(t.calls)
}

func parseObject(s string) (map[string]any, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
