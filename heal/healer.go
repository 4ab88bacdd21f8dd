package heal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/relay"
)

// HealingResult is the outcome of healing an invalid-arguments error.
// Arguments is set only when Healed is true.
type HealingResult struct {
	Healed    bool
	Message   relay.Message
	Arguments json.RawMessage
}

// Healer builds healing messages for tool-shaped errors.
type Healer struct {
	arrayFields map[string]string
}

// HealerOption configures a Healer.
type HealerOption func(*Healer)

// WithArrayField marks field of tool as array-typed, so a JSON-encoded
// string supplied in its place is repaired.
func WithArrayField(tool, field string) HealerOption {
	return func(h *Healer) { h.arrayFields[tool] = field }
}

// NewHealer returns a Healer that repairs the files of create_files, the
// datasets of create_chart and the statements of execute_sql.
func NewHealer(opts ...HealerOption) *Healer {
	h := &Healer{arrayFields: map[string]string{
		"create_files": "files",
		"create_chart": "datasets",
		"execute_sql":  "statements",
	}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealUnknownTool reports the unknown tool and every available tool name.
// It never heals.
func (h *Healer) HealUnknownTool(d Descriptor) relay.Message {
	text := fmt.Sprintf("Tool %q does not exist. Available tools: %s. Call one of these tools instead.",
		d.ToolName, strings.Join(d.AvailableTools, ", "))
	return relay.NewToolResult(d.ToolCallID, d.ToolName, map[string]any{"error": text}, true)
}

// HealInvalidArguments repairs an array field that was sent as a
// JSON-encoded string. Anything else yields an error result listing each
// validation issue.
func (h *Healer) HealInvalidArguments(d Descriptor) HealingResult {
	field, known := h.arrayFields[d.ToolName]
	if !known {
		return h.invalid(d, genericIssues(d))
	}

	payload := unwrapString(d.Arguments)
	var args map[string]any
	if err := json.Unmarshal([]byte(payload), &args); err != nil {
		return h.invalid(d, fmt.Sprintf("Arguments for %s are not a valid JSON object: %v. Send the arguments as a JSON object.", d.ToolName, err))
	}
	raw, ok := args[field].(string)
	if !ok {
		return h.invalid(d, genericIssues(d))
	}
	var arr []any
	if err := json.Unmarshal([]byte(unwrapString(raw)), &arr); err != nil {
		return h.invalid(d, fmt.Sprintf("The %q field of %s must be a JSON array, but it was sent as a string that does not contain a valid JSON array (%v). Send %q as an array, not a string.",
			field, d.ToolName, err, field))
	}
	args[field] = arr
	corrected, err := json.Marshal(args)
	if err != nil {
		return h.invalid(d, genericIssues(d))
	}
	result := map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("The %q field was sent as a JSON string and has been parsed into an array. Send it as an array next time.", field),
		"arguments": args,
	}
	return HealingResult{
		Healed:    true,
		Message:   relay.NewToolResult(d.ToolCallID, d.ToolName, result, false),
		Arguments: corrected,
	}
}

func (h *Healer) invalid(d Descriptor, text string) HealingResult {
	return HealingResult{
		Message: relay.NewToolResult(d.ToolCallID, d.ToolName, map[string]any{"error": text}, true),
	}
}

func genericIssues(d Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invalid arguments for tool %s:", d.ToolName)
	if len(d.Issues) == 0 {
		fmt.Fprintf(&b, "\n- %s", d.Message)
	}
	for _, is := range d.Issues {
		path := is.Path
		if path == "" {
			path = "/"
		}
		fmt.Fprintf(&b, "\n- %s: %s", path, is.Message)
	}
	b.WriteString("\nFix the arguments and call the tool again.")
	return b.String()
}

// unwrapString returns the decoded content when s is itself a JSON string,
// which happens when a payload was encoded twice.
func unwrapString(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, `"`) {
		return s
	}
	var inner string
	if err := json.Unmarshal([]byte(t), &inner); err != nil {
		return s
	}
	return inner
}
