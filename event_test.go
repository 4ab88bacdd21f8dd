package relay_test

import (
	"encoding/json"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/stretchr/testify/assert"
)

func TestEventTextDelta_ImplementsEvent(t *testing.T) {
	t.Parallel()
	var e relay.Event = relay.EventTextDelta{Delta: "hello"}
	assert.NotNil(t, e)
}

func TestEventToolCall_ImplementsEvent(t *testing.T) {
	t.Parallel()
	var e relay.Event = relay.EventToolCall{
		ID:        "tc_1",
		Name:      "think",
		Arguments: json.RawMessage(`{"thought":"x"}`),
	}
	assert.NotNil(t, e)
}

func TestEventTypeSwitch_Exhaustive(t *testing.T) {
	t.Parallel()
	events := []relay.Event{
		relay.EventTextDelta{Delta: "hello"},
		relay.EventToolCall{ID: "tc_1", Name: "think"},
		relay.EventToolCallStreamingStart{ID: "tc_1", Name: "think"},
		relay.EventToolCallDelta{ID: "tc_1", Delta: `{"thought":"`},
		relay.EventToolResult{ID: "tc_1", Name: "think", Result: "ok"},
		relay.EventStepFinish{Reason: relay.FinishToolCalls},
		relay.EventFinish{Reason: relay.FinishStop},
	}
	assert.Len(t, events, 7, "update slice and switch when adding new Event types")
	for _, e := range events {
		switch e.(type) {
		case relay.EventTextDelta:
		case relay.EventToolCall:
		case relay.EventToolCallStreamingStart:
		case relay.EventToolCallDelta:
		case relay.EventToolResult:
		case relay.EventStepFinish:
		case relay.EventFinish:
		default:
			t.Fatalf("unexpected event type: %T", e)
		}
	}
}

func TestUsage_Add(t *testing.T) {
	t.Parallel()
	u := relay.Usage{InputTokens: 10, OutputTokens: 5}.Add(relay.Usage{InputTokens: 3, OutputTokens: 2})
	assert.Equal(t, relay.Usage{InputTokens: 13, OutputTokens: 7}, u)
}
