// Package compact shrinks conversation history that has grown past a size
// threshold.
package compact

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/relay"
)

// Compactor keeps the first message and the most recent KeepRecent messages,
// replacing everything in between with a short note. A zero limit disables
// that check.
type Compactor struct {
	MaxMessages int
	MaxTokens   int
	KeepRecent  int
}

// ShouldCompact reports whether history exceeds either limit.
func (c Compactor) ShouldCompact(history []relay.Message) bool {
	if c.MaxMessages > 0 && len(history) > c.MaxMessages {
		return true
	}
	return c.MaxTokens > 0 && EstimateTokens(history) > c.MaxTokens
}

// Compact returns a shortened copy of history. The retained tail never
// starts with a tool message whose call was dropped.
func (c Compactor) Compact(history []relay.Message) []relay.Message {
	keep := max(c.KeepRecent, 1)
	if len(history) <= keep+1 {
		return history
	}
	start := len(history) - keep
	for start < len(history) && history[start].Role() == relay.RoleTool {
		start++
	}
	omitted := start - 1
	if omitted <= 0 {
		return history
	}
	out := make([]relay.Message, 0, len(history)-omitted+1)
	out = append(out, history[0])
	out = append(out, relay.UserMessage{
		Content:   []relay.ContentBlock{relay.TextBlock{Text: fmt.Sprintf("[%d earlier messages omitted to fit the context window.]", omitted)}},
		Timestamp: time.Now(),
	})
	return append(out, history[start:]...)
}

// EstimateTokens approximates the token count of history at four characters
// per token.
func EstimateTokens(history []relay.Message) int {
	chars := 0
	for _, m := range history {
		for _, b := range m.Blocks() {
			switch b := b.(type) {
			case relay.TextBlock:
				chars += len(b.Text)
			case relay.ToolCallBlock:
				chars += len(b.Name) + len(b.Arguments)
			case relay.ToolResultBlock:
				chars += len(b.Name)
				if s, ok := b.Result.(string); ok {
					chars += len(s)
				} else if data, err := json.Marshal(b.Result); err == nil {
					chars += len(data)
				}
			}
		}
	}
	return chars / 4
}
