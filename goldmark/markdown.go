// Package goldmark renders response and reasoning entries to ANSI-styled
// terminal output using goldmark for parsing and lipgloss for styling.
package goldmark

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/relay"
)

const defaultWidth = 80

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width. Code blocks and
// tables are rendered without reflow.
func Render(source string, width int, theme relay.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	return newRenderer(theme).render([]byte(source), width)
}

// RenderResponses renders the final answers of a turn, separated by blank
// lines. Entries with empty text are skipped.
func RenderResponses(entries []relay.ResponseEntry, width int, theme relay.Theme) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if out := Render(e.Text, width, theme); out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n\n")
}

// RenderReasoning renders one reasoning entry: a status-colored title line
// followed by its body, artifacts or pills.
func RenderReasoning(e relay.ReasoningEntry, width int, theme relay.Theme) string {
	if width <= 0 {
		width = defaultWidth
	}
	r := newRenderer(theme)
	title := lipgloss.NewStyle().Foreground(ansiColor(theme.StatusColor(e.Status))).Bold(true).Render("● " + e.Title)
	if e.Elapsed != "" {
		title += " " + r.muted.Render(e.Elapsed)
	}

	var body string
	switch e.Type {
	case relay.ReasoningFiles:
		var src strings.Builder
		for _, f := range e.Files {
			fmt.Fprintf(&src, "%s\n\n```%s\n%s\n```\n\n", f.Name, f.Language, strings.TrimRight(f.Content, "\n"))
		}
		body = Render(src.String(), width, theme)
	case relay.ReasoningPills:
		pills := make([]string, len(e.Pills))
		for i, p := range e.Pills {
			pills[i] = r.muted.Render("[" + p + "]")
		}
		body = lipgloss.NewStyle().Width(width).Render(strings.Join(pills, " "))
	default:
		body = Render(e.Body, width, theme)
	}
	if body == "" {
		return title
	}
	return title + "\n" + body
}
