package turn_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/mock"
	"github.com/fwojciec/relay/turn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func feed(t *testing.T, p *turn.Processor, events ...relay.Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, p.Process(context.Background(), e))
	}
}

func TestProcessor_TextDeltas(t *testing.T) {
	t.Parallel()
	store := &mock.RecordingStore{}
	p := turn.New(store, "c1")

	feed(t, p,
		relay.EventTextDelta{Delta: "Hel"},
		relay.EventTextDelta{Delta: "lo"},
	)

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []relay.ContentBlock{relay.TextBlock{Text: "Hello"}}, msgs[0].Blocks())
	assert.Equal(t, -1, p.LastPersistedIndex(), "in-progress message is never persisted as processed")
}

func TestProcessor_StreamedToolCallProducesOneReasoningEntry(t *testing.T) {
	t.Parallel()
	p := turn.New(&mock.RecordingStore{}, "c1", turn.WithThrottle(0))

	feed(t, p,
		relay.EventToolCallStreamingStart{ID: "tc_1", Name: "think"},
		relay.EventToolCallDelta{ID: "tc_1", Delta: `{"thought":"a",`},
		relay.EventToolCallDelta{ID: "tc_1", Delta: `"finished":false}`},
		relay.EventToolCallDelta{ID: "tc_1", Delta: ``},
		relay.EventToolCall{ID: "tc_1", Name: "think", Arguments: json.RawMessage(`{"thought":"a","finished":false}`)},
	)

	reasoning := p.Reasoning()
	require.Len(t, reasoning, 1)
	assert.Equal(t, "tc_1", reasoning[0].ID)
	assert.Equal(t, relay.StatusLoading, reasoning[0].Status)

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	calls := msgs[0].(relay.AssistantMessage).ToolCalls()
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"thought":"a","finished":false}`, string(calls[0].Arguments))
}

func TestProcessor_ToolResult(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, result any) (*turn.Processor, *mock.RecordingStore) {
		t.Helper()
		c := newClock()
		store := &mock.RecordingStore{}
		p := turn.New(store, "c1", turn.WithClock(c.now))
		feed(t, p, relay.EventToolCall{ID: "tc_1", Name: "execute_sql", Arguments: json.RawMessage(`{"statements":["SELECT 1"]}`)})
		c.advance(1200 * time.Millisecond)
		feed(t, p, relay.EventToolResult{ID: "tc_1", Name: "execute_sql", Result: result})
		return p, store
	}

	t.Run("error string marks failed", func(t *testing.T) {
		t.Parallel()
		p, _ := run(t, "Error: no such table")
		reasoning := p.Reasoning()
		require.Len(t, reasoning, 1)
		assert.Equal(t, relay.StatusFailed, reasoning[0].Status)
		assert.Equal(t, "1.2s", reasoning[0].Elapsed)
	})

	t.Run("success object marks completed", func(t *testing.T) {
		t.Parallel()
		p, store := run(t, map[string]any{"rows": []any{}})
		reasoning := p.Reasoning()
		require.Len(t, reasoning, 1)
		assert.Equal(t, relay.StatusCompleted, reasoning[0].Status)

		last := store.Last()
		require.Len(t, last.RawMessages, 2)
		assert.Equal(t, relay.RoleAssistant, last.RawMessages[0].Role())
		assert.Equal(t, relay.RoleTool, last.RawMessages[1].Role())
		assert.Equal(t, relay.StatusCompleted, last.Reasoning[0].Status)
		assert.Nil(t, last.ResponseMessages)
		assert.Equal(t, 1, p.LastPersistedIndex())
	})

	t.Run("result without reasoning entry creates none", func(t *testing.T) {
		t.Parallel()
		p := turn.New(nil, "c1")
		feed(t, p, relay.EventToolResult{ID: "ghost", Name: "think", Result: "ok"})
		assert.Empty(t, p.Reasoning())
	})
}

func TestProcessor_FinishingTools(t *testing.T) {
	t.Parallel()
	store := &mock.RecordingStore{}
	p := turn.New(store, "c1")

	feed(t, p,
		relay.EventToolCallStreamingStart{ID: "tc_1", Name: "done"},
		relay.EventToolCallDelta{ID: "tc_1", Delta: `{"message":"All done."}`},
		relay.EventStepFinish{Reason: relay.FinishToolCalls, Usage: relay.Usage{InputTokens: 5, OutputTokens: 3}},
	)

	assert.True(t, p.HasFinishingTool())
	assert.Empty(t, p.Reasoning())
	assert.Equal(t, []relay.ResponseEntry{{ID: "tc_1", ToolName: "done", Text: "All done."}}, p.Responses())
	assert.Equal(t, relay.Usage{InputTokens: 5, OutputTokens: 3}, p.Usage())
	assert.Equal(t, p.Responses(), store.Last().ResponseMessages)
}

func TestProcessor_Throttle(t *testing.T) {
	t.Parallel()
	c := newClock()
	store := &mock.RecordingStore{}
	p := turn.New(store, "c1", turn.WithClock(c.now), turn.WithThrottle(100*time.Millisecond))

	feed(t, p, relay.EventTextDelta{Delta: "a"})
	require.Len(t, store.Updates(), 1)

	c.advance(10 * time.Millisecond)
	feed(t, p, relay.EventTextDelta{Delta: "b"})
	assert.Len(t, store.Updates(), 1, "throttled")

	c.advance(100 * time.Millisecond)
	feed(t, p, relay.EventTextDelta{Delta: "c"})
	assert.Len(t, store.Updates(), 2)

	feed(t, p, relay.EventFinish{Reason: relay.FinishStop})
	assert.Len(t, store.Updates(), 3, "finish forces a save")
}

func TestProcessor_SaveFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	store := &mock.RecordingStore{Err: errors.New("db unavailable")}
	var saveErrs []error
	p := turn.New(store, "c1", turn.WithSaveHook(func(err error) { saveErrs = append(saveErrs, err) }))

	feed(t, p,
		relay.EventTextDelta{Delta: "hi"},
		relay.EventStepFinish{Reason: relay.FinishStop},
	)
	assert.Equal(t, -1, p.LastPersistedIndex())
	require.Len(t, saveErrs, 2)

	store.Err = nil
	p.Finish(context.Background())
	assert.Equal(t, 0, p.LastPersistedIndex())
}

func TestProcessor_ResumptionDoesNotRederive(t *testing.T) {
	t.Parallel()
	history := []relay.Message{
		relay.NewUserText("hi"),
		relay.AssistantMessage{Content: []relay.ContentBlock{
			relay.ToolCallBlock{ID: "old_1", Name: "think", Arguments: json.RawMessage(`{"thought":"x"}`)},
			relay.ToolCallBlock{ID: "old_2", Name: "done", Arguments: json.RawMessage(`{"message":"bye"}`)},
		}},
	}
	store := &mock.RecordingStore{}
	p := turn.New(store, "c1", turn.WithHistory(history))
	assert.Equal(t, 1, p.LastPersistedIndex())

	p.Finish(context.Background())

	assert.Empty(t, p.Reasoning())
	assert.Empty(t, p.Responses())
	last := store.Last()
	assert.Len(t, last.RawMessages, 2)
	assert.Nil(t, last.ResponseMessages)
}

func TestProcessor_SeededEntriesAreDeduplicated(t *testing.T) {
	t.Parallel()
	p := turn.New(nil, "c1",
		turn.WithReasoning([]relay.ReasoningEntry{{ID: "tc_1", Title: "seeded", Status: relay.StatusCompleted}}),
		turn.WithResponses([]relay.ResponseEntry{{ID: "tc_2", Text: "seeded"}}),
	)

	feed(t, p,
		relay.EventToolCall{ID: "tc_1", Name: "think", Arguments: json.RawMessage(`{}`)},
		relay.EventToolCall{ID: "tc_2", Name: "done", Arguments: json.RawMessage(`{"message":"new"}`)},
	)

	require.Len(t, p.Reasoning(), 1)
	assert.Equal(t, "seeded", p.Reasoning()[0].Title)
	require.Len(t, p.Responses(), 1)
	assert.Equal(t, "seeded", p.Responses()[0].Text)
}

func TestProcessor_Cancelled(t *testing.T) {
	t.Parallel()
	p := turn.New(nil, "c1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Process(ctx, relay.EventTextDelta{Delta: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.Messages())
}

func TestProcessor_Rewind(t *testing.T) {
	t.Parallel()

	t.Run("discards partial output since the mark", func(t *testing.T) {
		t.Parallel()
		store := &mock.RecordingStore{}
		p := turn.New(store, "c1",
			turn.WithHistory([]relay.Message{relay.NewUserText("clean up")}),
			turn.WithThrottle(0))
		mark := p.Mark()

		feed(t, p,
			relay.EventTextDelta{Delta: "Hel"},
			relay.EventToolCallStreamingStart{ID: "tc_1", Name: "done"},
			relay.EventToolCallDelta{ID: "tc_1", Delta: `{"message":"bye"}`},
		)
		require.Len(t, p.Responses(), 1)
		require.True(t, p.HasFinishingTool())

		p.Rewind(context.Background(), mark)

		assert.Len(t, p.Messages(), 1)
		assert.Empty(t, p.Responses())
		assert.False(t, p.HasFinishingTool())
		assert.Len(t, store.Last().RawMessages, 1, "rewound history is saved")

		feed(t, p, relay.EventTextDelta{Delta: "Hello"})
		msgs := p.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, []relay.ContentBlock{relay.TextBlock{Text: "Hello"}}, msgs[1].Blocks())
	})

	t.Run("rejected call can be streamed again under the same id", func(t *testing.T) {
		t.Parallel()
		p := turn.New(nil, "c1", turn.WithThrottle(0))
		mark := p.Mark()

		feed(t, p,
			relay.EventToolCallStreamingStart{ID: "tc_1", Name: "think"},
			relay.EventToolCallDelta{ID: "tc_1", Delta: `{"thought":"draft"}`},
		)
		p.Rewind(context.Background(), mark)
		assert.Empty(t, p.Reasoning())

		feed(t, p,
			relay.EventToolCallStreamingStart{ID: "tc_1", Name: "think"},
			relay.EventToolCallDelta{ID: "tc_1", Delta: `{"thought":"final"}`},
		)
		reasoning := p.Reasoning()
		require.Len(t, reasoning, 1)
		calls := p.Messages()[0].(relay.AssistantMessage).ToolCalls()
		require.Len(t, calls, 1)
		assert.JSONEq(t, `{"thought":"final"}`, string(calls[0].Arguments))
	})

	t.Run("keeps seeded entries and persisted index in range", func(t *testing.T) {
		t.Parallel()
		seed := []relay.Message{relay.NewUserText("q")}
		p := turn.New(&mock.RecordingStore{}, "c1",
			turn.WithHistory(seed),
			turn.WithReasoning([]relay.ReasoningEntry{{ID: "old"}}),
			turn.WithThrottle(0))
		mark := p.Mark()

		feed(t, p,
			relay.EventToolCall{ID: "tc_1", Name: "think", Arguments: json.RawMessage(`{"thought":"x"}`)},
			relay.EventStepFinish{Reason: relay.FinishToolCalls},
		)
		require.Equal(t, 1, p.LastPersistedIndex())

		p.Rewind(context.Background(), mark)
		assert.Equal(t, 0, p.LastPersistedIndex())
		reasoning := p.Reasoning()
		require.Len(t, reasoning, 1)
		assert.Equal(t, "old", reasoning[0].ID)
	})
}

func TestProcessor_Append(t *testing.T) {
	t.Parallel()
	store := &mock.RecordingStore{}
	p := turn.New(store, "c1", turn.WithThrottle(0))

	feed(t, p, relay.EventTextDelta{Delta: "partial"})
	healing := relay.NewToolResult("tc_1", "rm_rf", map[string]any{"error": "no such tool"}, true)
	p.Append(context.Background(), healing)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, relay.RoleAssistant, msgs[0].Role())
	assert.Equal(t, healing, msgs[1])
	assert.Len(t, store.Last().RawMessages, 2)
	assert.Empty(t, p.Reasoning(), "healing results do not touch reasoning")
}
