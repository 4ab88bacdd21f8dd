package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/relay"
)

type createChartArgs struct {
	Title    string    `json:"title"`
	Type     string    `json:"type"`
	Labels   []string  `json:"labels"`
	Datasets []dataset `json:"datasets"`
}

type dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

var chartTypes = map[string]bool{"bar": true, "line": true, "pie": true, "scatter": true}

// CreateChartTool returns the tool definition for the create_chart tool.
func CreateChartTool() relay.Tool {
	return relay.Tool{
		Name:        "create_chart",
		Description: "Create a chart from labelled numeric series.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Chart title"},
				"type": {"type": "string", "enum": ["bar", "line", "pie", "scatter"]},
				"labels": {"type": "array", "items": {"type": "string"}},
				"datasets": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"properties": {
							"label": {"type": "string"},
							"data": {"type": "array", "items": {"type": "number"}}
						},
						"required": ["label", "data"]
					}
				}
			},
			"required": ["title", "type", "labels", "datasets"]
		}`),
	}
}

// ExecuteCreateChart checks that every series lines up with the labels and
// returns the chart specification.
func ExecuteCreateChart(_ context.Context, args json.RawMessage) (*relay.ToolResult, error) {
	var a createChartArgs
	if res := decodeArgs(args, &a); res != nil {
		return res, nil
	}
	if !chartTypes[a.Type] {
		return domainError(fmt.Sprintf("unsupported chart type: %q", a.Type)), nil
	}
	if len(a.Datasets) == 0 {
		return domainError("datasets must contain at least one series"), nil
	}
	for _, d := range a.Datasets {
		if len(d.Data) != len(a.Labels) {
			return domainError(fmt.Sprintf("series %q has %d points for %d labels", d.Label, len(d.Data), len(a.Labels))), nil
		}
	}
	return valueResult(map[string]any{
		"title":  a.Title,
		"type":   a.Type,
		"series": len(a.Datasets),
		"points": len(a.Labels),
	}), nil
}
