package turn

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/relay"
	"gopkg.in/yaml.v3"
)

// Placeholder is the body of a generic reasoning entry whose arguments
// cannot be serialized.
const Placeholder = "Unable to display arguments"

// Tool names with dedicated projections.
const (
	ToolThink                  = "think"
	ToolCreateFiles            = "create_files"
	ToolExecuteSQL             = "execute_sql"
	ToolFindFiles              = "find_files"
	ToolCreateChart            = "create_chart"
	ToolDone                   = "done"
	ToolRespondWithoutAnalysis = "respond_without_analysis"
)

// SynthFunc maps a tool call's arguments to a reasoning entry.
type SynthFunc func(id string, args map[string]any) relay.ReasoningEntry

var synthesizers = map[string]SynthFunc{
	ToolThink:       synthThink,
	ToolCreateFiles: synthCreateFiles,
	ToolExecuteSQL:  synthExecuteSQL,
	ToolFindFiles:   synthFindFiles,
	ToolCreateChart: synthCreateChart,
}

// Synthesize returns the reasoning entry for a tool call. Tools without a
// dedicated projection get a generic text entry titled with the tool name.
func Synthesize(id, name string, args map[string]any) relay.ReasoningEntry {
	fn, ok := synthesizers[name]
	if !ok {
		fn = synthGeneric(name)
	}
	e := fn(id, args)
	e.ID = id
	e.Status = relay.StatusLoading
	return e
}

func synthThink(_ string, args map[string]any) relay.ReasoningEntry {
	finished, _ := args["finished"].(bool)
	thought, _ := args["thought"].(string)
	return relay.ReasoningEntry{
		Type:     relay.ReasoningText,
		Title:    "Thinking…",
		Body:     thought,
		Finished: finished,
	}
}

func synthCreateFiles(_ string, args map[string]any) relay.ReasoningEntry {
	files, _ := args["files"].([]any)
	e := relay.ReasoningEntry{Type: relay.ReasoningFiles, Title: "Creating files"}
	for _, f := range files {
		m, ok := f.(map[string]any)
		if !ok {
			continue
		}
		e.Files = append(e.Files, relay.Artifact{
			Name:     firstString(m, "path", "name"),
			Content:  firstString(m, "content"),
			Language: firstString(m, "language"),
		})
	}
	return e
}

func synthExecuteSQL(_ string, args map[string]any) relay.ReasoningEntry {
	stmts := Statements(args["statements"])
	body, err := yaml.Marshal(map[string][]string{"statements": stmts})
	if err != nil {
		body = []byte(strings.Join(stmts, "\n"))
	}
	title := firstString(args, "description")
	if title == "" {
		title = "Running SQL"
	}
	return relay.ReasoningEntry{
		Type:  relay.ReasoningFiles,
		Title: title,
		Files: []relay.Artifact{{Name: "query.yaml", Content: string(body), Language: "yaml"}},
	}
}

// Statements normalizes the statements argument of execute_sql. It accepts
// an array, a JSON-encoded array string, or a single raw statement. A string
// that looks like JSON but does not parse is kept as one literal statement.
func Statements(v any) []string {
	switch s := v.(type) {
	case []any:
		out := make([]string, 0, len(s))
		for _, x := range s {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case []string:
		return s
	case string:
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, `"`) {
			var decoded any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return Statements(decoded)
			}
		}
		if trimmed == "" {
			return nil
		}
		return []string{s}
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(s)}
	}
}

func synthFindFiles(_ string, args map[string]any) relay.ReasoningEntry {
	e := relay.ReasoningEntry{Type: relay.ReasoningPills, Title: "Searching files"}
	switch p := args["patterns"].(type) {
	case []any:
		for _, x := range p {
			if s, ok := x.(string); ok {
				e.Pills = append(e.Pills, s)
			}
		}
	case string:
		e.Pills = []string{p}
	}
	if s := firstString(args, "pattern"); s != "" {
		e.Pills = append(e.Pills, s)
	}
	return e
}

func synthCreateChart(_ string, args map[string]any) relay.ReasoningEntry {
	title := firstString(args, "title")
	if title == "" {
		title = "Creating chart"
	}
	return relay.ReasoningEntry{
		Type:  relay.ReasoningFiles,
		Title: title,
		Files: []relay.Artifact{{Name: "chart.json", Content: indent(args), Language: "json"}},
	}
}

func synthGeneric(name string) SynthFunc {
	return func(_ string, args map[string]any) relay.ReasoningEntry {
		return relay.ReasoningEntry{Type: relay.ReasoningText, Title: name, Body: indent(args)}
	}
}

// Respond returns the response entry for a finishing tool call.
func Respond(id, name string, args map[string]any) relay.ResponseEntry {
	var text string
	switch name {
	case ToolDone:
		text = firstString(args, "message", "summary")
	case ToolRespondWithoutAnalysis:
		text = firstString(args, "response")
	}
	if text == "" {
		text = indent(args)
	}
	return relay.ResponseEntry{ID: id, ToolName: name, Text: text}
}

func indent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Placeholder
	}
	return string(b)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
