package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fwojciec/relay"
	"golang.org/x/time/rate"
)

// DefaultThrottle is the minimum interval between unforced saves.
const DefaultThrottle = 100 * time.Millisecond

// Processor accumulates one turn's events. It is not safe for concurrent
// use; events must be fed in delivery order.
type Processor struct {
	store          relay.ConversationStore
	conversationID string
	logger         *slog.Logger
	now            func() time.Time
	throttle       time.Duration
	limiter        *rate.Limiter
	finishing      map[string]bool
	onSave         func(error)

	messages []relay.Message
	current  *relay.AssistantMessage
	tracker  *Tracker

	reasoning    []relay.ReasoningEntry
	reasoningIdx map[string]int
	responses    []relay.ResponseEntry
	responseIDs  map[string]bool

	hasFinishing  bool
	lastPersisted int
	firstToolCall time.Time
	usage         relay.Usage
	steps         int
}

// Option configures a Processor.
type Option func(*Processor)

// WithHistory seeds already-persisted messages. They are never reprocessed
// for reasoning or responses.
func WithHistory(msgs []relay.Message) Option {
	return func(p *Processor) {
		p.messages = append([]relay.Message(nil), msgs...)
		p.lastPersisted = len(msgs) - 1
	}
}

// WithReasoning seeds previously persisted reasoning entries.
func WithReasoning(entries []relay.ReasoningEntry) Option {
	return func(p *Processor) {
		for _, e := range entries {
			p.addReasoning(e)
		}
	}
}

// WithResponses seeds previously persisted response entries.
func WithResponses(entries []relay.ResponseEntry) Option {
	return func(p *Processor) {
		for _, e := range entries {
			p.addResponse(e)
		}
	}
}

// WithThrottle sets the minimum interval between unforced saves.
func WithThrottle(d time.Duration) Option {
	return func(p *Processor) { p.throttle = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithLogger sets the logger used for swallowed save failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithFinishingTools replaces the set of tools whose calls feed the response
// projection instead of reasoning.
func WithFinishingTools(names ...string) Option {
	return func(p *Processor) {
		p.finishing = make(map[string]bool, len(names))
		for _, n := range names {
			p.finishing[n] = true
		}
	}
}

// WithSaveHook registers fn to observe the outcome of every save attempt.
func WithSaveHook(fn func(error)) Option {
	return func(p *Processor) { p.onSave = fn }
}

// New returns a Processor that persists to store under conversationID.
// A nil store disables persistence.
func New(store relay.ConversationStore, conversationID string, opts ...Option) *Processor {
	p := &Processor{
		store:          store,
		conversationID: conversationID,
		logger:         slog.Default(),
		now:            time.Now,
		throttle:       DefaultThrottle,
		finishing:      map[string]bool{ToolDone: true, ToolRespondWithoutAnalysis: true},
		tracker:        NewTracker(),
		reasoningIdx:   make(map[string]int),
		responseIDs:    make(map[string]bool),
		lastPersisted:  -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.limiter = rate.NewLimiter(rate.Every(p.throttle), 1)
	return p
}

// Process applies one event. Persistence failures are logged and never
// returned; the error return is reserved for cancellation.
func (p *Processor) Process(ctx context.Context, evt relay.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch e := evt.(type) {
	case relay.EventTextDelta:
		p.appendText(e.Delta)
	case relay.EventToolCallStreamingStart:
		p.startCall(e.ID, e.Name)
	case relay.EventToolCallDelta:
		if args, ok := p.tracker.AppendDelta(e.ID, e.Delta); ok {
			p.updateCall(e.ID, args)
		}
	case relay.EventToolCall:
		p.startCall(e.ID, e.Name)
		if args, ok := p.tracker.Set(e.ID, e.Name, e.Arguments); ok {
			p.updateCall(e.ID, args)
		}
	case relay.EventToolResult:
		p.finalize()
		p.messages = append(p.messages, relay.NewToolResult(e.ID, e.Name, e.Result, e.IsError))
		p.completeReasoning(e)
		p.tracker.Remove(e.ID)
		p.save(ctx, true)
		return nil
	case relay.EventStepFinish:
		p.finalize()
		p.usage = p.usage.Add(e.Usage)
		p.steps++
		p.save(ctx, true)
		return nil
	case relay.EventFinish:
		p.finalize()
		if p.steps == 0 {
			p.usage = p.usage.Add(e.Usage)
		}
		p.save(ctx, true)
		return nil
	}
	p.save(ctx, false)
	return nil
}

// Finish finalizes any in-progress message and forces a save. It is the
// terminal transition for graceful stops such as cancellation.
func (p *Processor) Finish(ctx context.Context) {
	p.finalize()
	p.save(context.WithoutCancel(ctx), true)
}

// Mark is a position in a Processor's history, taken with [Processor.Mark]
// and restored with [Processor.Rewind].
type Mark struct {
	messages      int
	reasoning     int
	responses     int
	hasFinishing  bool
	firstToolCall time.Time
}

// Mark finalizes any in-progress message and returns the current position.
func (p *Processor) Mark() Mark {
	p.finalize()
	return Mark{
		messages:      len(p.messages),
		reasoning:     len(p.reasoning),
		responses:     len(p.responses),
		hasFinishing:  p.hasFinishing,
		firstToolCall: p.firstToolCall,
	}
}

// Rewind discards everything processed since m: the in-progress message,
// messages finalized after m, in-flight tool calls and the reasoning and
// response entries derived from them. Usage is kept. The shortened history
// is saved immediately so the store no longer holds the discarded output.
func (p *Processor) Rewind(ctx context.Context, m Mark) {
	p.current = nil
	if m.messages < len(p.messages) {
		p.messages = p.messages[:m.messages:m.messages]
	}
	p.tracker = NewTracker()
	if m.reasoning < len(p.reasoning) {
		for _, e := range p.reasoning[m.reasoning:] {
			delete(p.reasoningIdx, e.ID)
		}
		p.reasoning = p.reasoning[:m.reasoning:m.reasoning]
	}
	if m.responses < len(p.responses) {
		for _, e := range p.responses[m.responses:] {
			delete(p.responseIDs, e.ID)
		}
		p.responses = p.responses[:m.responses:m.responses]
	}
	p.hasFinishing = m.hasFinishing
	p.firstToolCall = m.firstToolCall
	p.lastPersisted = min(p.lastPersisted, len(p.messages)-1)
	p.save(ctx, true)
}

// Append adds a complete message, such as a healing message sent to the
// model on retry, after any in-progress message and forces a save.
func (p *Processor) Append(ctx context.Context, msg relay.Message) {
	p.finalize()
	p.messages = append(p.messages, msg)
	p.save(ctx, true)
}

// Messages returns the accumulated history including any in-progress
// assistant message.
func (p *Processor) Messages() []relay.Message {
	msgs := append([]relay.Message(nil), p.messages...)
	if p.current != nil {
		cur := *p.current
		cur.Content = append([]relay.ContentBlock(nil), cur.Content...)
		msgs = append(msgs, cur)
	}
	return msgs
}

// Reasoning returns the reasoning projection.
func (p *Processor) Reasoning() []relay.ReasoningEntry {
	return append([]relay.ReasoningEntry(nil), p.reasoning...)
}

// Responses returns the response projection.
func (p *Processor) Responses() []relay.ResponseEntry {
	return append([]relay.ResponseEntry(nil), p.responses...)
}

// HasFinishingTool reports whether a finishing tool call has been seen.
func (p *Processor) HasFinishingTool() bool { return p.hasFinishing }

// LastPersistedIndex returns the index of the last message covered by a
// successful save, or -1.
func (p *Processor) LastPersistedIndex() int { return p.lastPersisted }

// Usage returns accumulated token usage.
func (p *Processor) Usage() relay.Usage { return p.usage }

func (p *Processor) ensureCurrent() *relay.AssistantMessage {
	if p.current == nil {
		p.current = &relay.AssistantMessage{Timestamp: p.now()}
	}
	return p.current
}

func (p *Processor) appendText(delta string) {
	cur := p.ensureCurrent()
	for i, b := range cur.Content {
		if tb, ok := b.(relay.TextBlock); ok {
			cur.Content[i] = relay.TextBlock{Text: tb.Text + delta}
			return
		}
	}
	cur.Content = append(cur.Content, relay.TextBlock{Text: delta})
}

func (p *Processor) startCall(id, name string) {
	if p.firstToolCall.IsZero() {
		p.firstToolCall = p.now()
	}
	if p.finishing[name] {
		p.hasFinishing = true
	}
	if !p.tracker.Start(id, name) {
		return
	}
	cur := p.ensureCurrent()
	for _, b := range cur.Content {
		if tc, ok := b.(relay.ToolCallBlock); ok && tc.ID == id {
			return
		}
	}
	cur.Content = append(cur.Content, relay.ToolCallBlock{ID: id, Name: name})
}

func (p *Processor) updateCall(id string, args map[string]any) {
	name := p.tracker.Name(id)
	raw := json.RawMessage(p.tracker.Raw(id))
	cur := p.ensureCurrent()
	found := false
	for i, b := range cur.Content {
		if tc, ok := b.(relay.ToolCallBlock); ok && tc.ID == id {
			cur.Content[i] = relay.ToolCallBlock{ID: id, Name: name, Arguments: raw}
			found = true
			break
		}
	}
	if !found {
		cur.Content = append(cur.Content, relay.ToolCallBlock{ID: id, Name: name, Arguments: raw})
	}
	p.project(id, name, args)
}

// project derives the reasoning or response entry for a parsed call unless
// one already exists for id.
func (p *Processor) project(id, name string, args map[string]any) {
	if p.finishing[name] {
		p.addResponse(Respond(id, name, args))
		return
	}
	p.addReasoning(Synthesize(id, name, args))
}

func (p *Processor) addReasoning(e relay.ReasoningEntry) {
	if _, ok := p.reasoningIdx[e.ID]; ok {
		return
	}
	p.reasoningIdx[e.ID] = len(p.reasoning)
	p.reasoning = append(p.reasoning, e)
}

func (p *Processor) addResponse(e relay.ResponseEntry) {
	if p.responseIDs[e.ID] {
		return
	}
	p.responseIDs[e.ID] = true
	p.responses = append(p.responses, e)
}

func (p *Processor) completeReasoning(e relay.EventToolResult) {
	i, ok := p.reasoningIdx[e.ID]
	if !ok {
		return
	}
	status := relay.StatusCompleted
	if Failed(e.Result, e.IsError) {
		status = relay.StatusFailed
	}
	p.reasoning[i].Status = status
	if !p.firstToolCall.IsZero() {
		p.reasoning[i].Elapsed = FormatElapsed(p.now().Sub(p.firstToolCall))
	}
}

func (p *Processor) finalize() {
	if p.current == nil {
		return
	}
	p.messages = append(p.messages, *p.current)
	p.current = nil
}

func (p *Processor) save(ctx context.Context, force bool) {
	allowed := p.limiter.AllowN(p.now(), 1)
	if !force && !allowed {
		return
	}
	all := p.Messages()
	for _, m := range all[p.lastPersisted+1:] {
		am, ok := m.(relay.AssistantMessage)
		if !ok {
			continue
		}
		for _, tc := range am.ToolCalls() {
			if args, ok := parseObject(string(tc.Arguments)); ok {
				p.project(tc.ID, tc.Name, args)
			}
		}
	}
	if p.store == nil {
		return
	}
	u := relay.ConversationUpdate{
		RawMessages: all,
		Reasoning:   p.Reasoning(),
	}
	if len(p.responses) > 0 {
		u.ResponseMessages = p.Responses()
	}
	err := p.store.UpdateConversation(ctx, p.conversationID, u)
	if p.onSave != nil {
		p.onSave(err)
	}
	if err != nil {
		p.logger.Warn("save conversation failed",
			"conversation_id", p.conversationID,
			"messages", len(all),
			"error", err)
		return
	}
	p.lastPersisted = len(p.messages) - 1
}

// Failed reports whether a tool result represents a failure: a string
// mentioning error, failed or exception, an object with an error field,
// success set to false or status "error", or an explicit error flag.
func Failed(result any, isError bool) bool {
	if isError {
		return true
	}
	switch r := result.(type) {
	case nil:
		return false
	case string:
		s := strings.ToLower(r)
		return strings.Contains(s, "error") || strings.Contains(s, "failed") || strings.Contains(s, "exception")
	case map[string]any:
		if v, ok := r["error"]; ok && v != nil && v != false && v != "" {
			return true
		}
		if v, ok := r["success"].(bool); ok && !v {
			return true
		}
		if v, ok := r["status"].(string); ok && v == "error" {
			return true
		}
		return false
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return false
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return false
		}
		if _, ok := v.(map[string]any); !ok {
			return false
		}
		return Failed(v, false)
	}
}

// FormatElapsed renders d as a short human-readable label.
func FormatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		m := int(d / time.Minute)
		s := int((d % time.Minute) / time.Second)
		return fmt.Sprintf("%dm %ds", m, s)
	}
}
