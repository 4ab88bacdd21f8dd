// Package builtin provides the built-in tools for the relay agent: thinking,
// file creation, SQL execution, file search, charts and the two finishing
// tools.
package builtin

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/relay"
)

func domainError(msg string) *relay.ToolResult {
	return &relay.ToolResult{Value: msg, IsError: true}
}

func valueResult(v any) *relay.ToolResult {
	return &relay.ToolResult{Value: v}
}

func decodeArgs(args json.RawMessage, dst any) *relay.ToolResult {
	if err := json.Unmarshal(args, dst); err != nil {
		return domainError(fmt.Sprintf("invalid arguments: %s", err))
	}
	return nil
}
