// Package agent runs agent turns: it streams model steps through the retry
// orchestrator into a turn processor and executes the requested tools.
package agent

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/retry"
	"github.com/fwojciec/relay/turn"
)

// DefaultMaxSteps bounds the number of model steps in one turn.
const DefaultMaxSteps = 10

// Loop orchestrates a turn between a Provider and a ToolExecutor.
type Loop struct {
	provider  relay.Provider
	executor  relay.ToolExecutor
	store     relay.ConversationStore
	retryOpts []retry.Option
	turnOpts  []turn.Option
	maxSteps  int
	logger    *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithStore persists turn progress to s.
func WithStore(s relay.ConversationStore) Option {
	return func(l *Loop) { l.store = s }
}

// WithRetryOptions configures the retry orchestrator used for every step.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(l *Loop) { l.retryOpts = append(l.retryOpts, opts...) }
}

// WithTurnOptions configures the processor created for every turn.
func WithTurnOptions(opts ...turn.Option) Option {
	return func(l *Loop) { l.turnOpts = append(l.turnOpts, opts...) }
}

// WithMaxSteps bounds the number of model steps per turn.
func WithMaxSteps(n int) Option {
	return func(l *Loop) { l.maxSteps = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// New creates a new Loop with the given provider and tool executor.
func New(provider relay.Provider, executor relay.ToolExecutor, opts ...Option) *Loop {
	l := &Loop{
		provider: provider,
		executor: executor,
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunOption configures a single Run invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent      func(relay.Event)
	model        string
	systemPrompt string
	toolChoice   relay.ToolChoice
}

// WithEventHandler sets a callback that receives each streaming event during
// the run, followed by synthesized tool results and the final EventFinish.
// If nil or not set, events are silently discarded.
func WithEventHandler(h func(relay.Event)) RunOption {
	return func(c *runConfig) {
		c.onEvent = h
	}
}

// WithModel sets the model ID for provider requests during this run.
// Empty string means the provider uses its default model.
func WithModel(model string) RunOption {
	return func(c *runConfig) {
		c.model = model
	}
}

// WithSystemPrompt sets the system prompt for this run.
func WithSystemPrompt(prompt string) RunOption {
	return func(c *runConfig) {
		c.systemPrompt = prompt
	}
}

// WithToolChoice sets the tool-choice policy for this run.
func WithToolChoice(choice relay.ToolChoice) RunOption {
	return func(c *runConfig) {
		c.toolChoice = choice
	}
}

// Run executes one turn. It streams model steps, executes requested tools and
// repeats until the model stops calling tools, a finishing tool is called or
// the step limit is reached. conv is updated with the resulting messages and
// projections. Cancellation ends the turn gracefully and returns nil.
func (l *Loop) Run(ctx context.Context, conv *relay.Conversation, tools []relay.Tool, opts ...RunOption) error {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	popts := append([]turn.Option{
		turn.WithHistory(conv.Messages),
		turn.WithReasoning(conv.Reasoning),
		turn.WithResponses(conv.Responses),
		turn.WithLogger(l.logger),
	}, l.turnOpts...)
	proc := turn.New(l.store, conv.ID, popts...)
	defer l.sync(conv, proc)

	// mark is where the current attempt's output begins. A replaced stream
	// is rolled back to it and the healing message sent with the retry is
	// recorded in its place.
	var mark turn.Mark
	restart := retry.WithRestart(func(healing relay.Message) {
		proc.Rewind(ctx, mark)
		proc.Append(ctx, healing)
		mark = proc.Mark()
	})
	orch := retry.New(l.provider, slices.Concat([]retry.Option{retry.WithLogger(l.logger)}, l.retryOpts, []retry.Option{restart})...)

	reason := relay.FinishStop
	for step := 0; ; step++ {
		if step == l.maxSteps {
			reason = relay.FinishLength
			break
		}
		mark = proc.Mark()
		stepStart := len(proc.Messages())
		req := relay.Request{
			Model:        cfg.model,
			SystemPrompt: cfg.systemPrompt,
			Messages:     proc.Messages(),
			Tools:        tools,
			ToolChoice:   cfg.toolChoice,
			OnChunk:      cfg.onEvent,
		}
		res, err := orch.Run(ctx, req, func(e relay.Event) error {
			return proc.Process(ctx, e)
		})
		if err != nil {
			proc.Finish(ctx)
			return err
		}
		if ctx.Err() != nil {
			proc.Finish(ctx)
			return nil
		}
		if res.RetryCount > 0 {
			l.logger.Info("step recovered", "conversation_id", conv.ID, "step", step, "retries", res.RetryCount)
		}

		calls := pendingCalls(proc.Messages()[stepStart:])
		if len(calls) == 0 {
			break
		}
		for _, tc := range calls {
			if ctx.Err() != nil {
				proc.Finish(ctx)
				return nil
			}
			evt := l.execute(ctx, tc)
			if cfg.onEvent != nil {
				cfg.onEvent(evt)
			}
			if err := proc.Process(ctx, evt); err != nil {
				proc.Finish(ctx)
				return nil
			}
		}
		if proc.HasFinishingTool() {
			break
		}
	}

	finish := relay.EventFinish{Reason: reason, Usage: proc.Usage()}
	if cfg.onEvent != nil {
		cfg.onEvent(finish)
	}
	if err := proc.Process(ctx, finish); err != nil {
		proc.Finish(ctx)
	}
	return nil
}

func (l *Loop) execute(ctx context.Context, tc relay.ToolCallBlock) relay.EventToolResult {
	result, err := l.executor.Execute(ctx, tc.Name, tc.Arguments)
	if err != nil {
		l.logger.Warn("tool execution failed", "tool_call_id", tc.ID, "tool", tc.Name, "error", err)
		result = &relay.ToolResult{Value: map[string]any{"error": err.Error()}, IsError: true}
	}
	return relay.EventToolResult{ID: tc.ID, Name: tc.Name, Result: result.Value, IsError: result.IsError}
}

func (l *Loop) sync(conv *relay.Conversation, proc *turn.Processor) {
	conv.Messages = proc.Messages()
	conv.Reasoning = proc.Reasoning()
	conv.Responses = proc.Responses()
	conv.UpdatedAt = time.Now()
}

// pendingCalls returns tool calls in msgs that have no later result, in
// order.
func pendingCalls(msgs []relay.Message) []relay.ToolCallBlock {
	var calls []relay.ToolCallBlock
	for _, m := range msgs {
		switch m := m.(type) {
		case relay.AssistantMessage:
			calls = append(calls, m.ToolCalls()...)
		case relay.ToolMessage:
			for _, b := range m.Content {
				if r, ok := b.(relay.ToolResultBlock); ok {
					calls = slices.DeleteFunc(calls, func(tc relay.ToolCallBlock) bool { return tc.ID == r.ID })
				}
			}
		}
	}
	return calls
}
