package builtin

import (
	"context"
	"encoding/json"

	"github.com/fwojciec/relay"
)

type thinkArgs struct {
	Thought  string `json:"thought"`
	Finished bool   `json:"finished"`
}

// ThinkTool returns the tool definition for the think tool.
func ThinkTool() relay.Tool {
	return relay.Tool{
		Name:        "think",
		Description: "Record a reasoning step before acting. Set finished once the plan is complete.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"thought": {
					"type": "string",
					"description": "The reasoning step"
				},
				"finished": {
					"type": "boolean",
					"description": "Whether reasoning is complete"
				}
			},
			"required": ["thought"]
		}`),
	}
}

// ExecuteThink acknowledges a reasoning step. Thoughts have no side effects.
func ExecuteThink(_ context.Context, args json.RawMessage) (*relay.ToolResult, error) {
	var a thinkArgs
	if res := decodeArgs(args, &a); res != nil {
		return res, nil
	}
	if a.Thought == "" {
		return domainError("thought is required"), nil
	}
	if a.Finished {
		return valueResult("reasoning complete"), nil
	}
	return valueResult("noted"), nil
}
