package builtin

import (
	"context"
	"encoding/json"

	"github.com/fwojciec/relay"
)

type doneArgs struct {
	Message string `json:"message"`
	Summary string `json:"summary"`
}

type respondArgs struct {
	Response string `json:"response"`
}

// DoneTool returns the tool definition for the done tool, which ends an
// analysis with a final message to the user.
func DoneTool() relay.Tool {
	return relay.Tool{
		Name:        "done",
		Description: "Finish the analysis and give the user the final answer.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"message": {
					"type": "string",
					"description": "The final answer shown to the user"
				},
				"summary": {
					"type": "string",
					"description": "Optional one-line summary"
				}
			},
			"required": ["message"]
		}`),
	}
}

// RespondWithoutAnalysisTool returns the tool definition for answering
// directly when no analysis is needed.
func RespondWithoutAnalysisTool() relay.Tool {
	return relay.Tool{
		Name:        "respond_without_analysis",
		Description: "Answer the user directly when the question needs no files, queries or charts.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"response": {
					"type": "string",
					"description": "The answer shown to the user"
				}
			},
			"required": ["response"]
		}`),
	}
}

// ExecuteDone accepts the final message.
func ExecuteDone(_ context.Context, args json.RawMessage) (*relay.ToolResult, error) {
	var a doneArgs
	if res := decodeArgs(args, &a); res != nil {
		return res, nil
	}
	if a.Message == "" && a.Summary == "" {
		return domainError("message is required"), nil
	}
	return valueResult("delivered"), nil
}

// ExecuteRespondWithoutAnalysis accepts a direct answer.
func ExecuteRespondWithoutAnalysis(_ context.Context, args json.RawMessage) (*relay.ToolResult, error) {
	var a respondArgs
	if res := decodeArgs(args, &a); res != nil {
		return res, nil
	}
	if a.Response == "" {
		return domainError("response is required"), nil
	}
	return valueResult("delivered"), nil
}
