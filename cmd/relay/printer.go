package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/goldmark"
	"github.com/fwojciec/relay/heal"
)

// printer streams assistant text to out and one status line per tool call,
// tool result and retry to status.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	status  io.Writer
	theme   relay.Theme
	width   int
	loading lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
	muted   lipgloss.Style
	inText  bool
}

func newPrinter(out, status io.Writer, theme relay.Theme, width int) *printer {
	color := func(i int) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(strconv.Itoa(i)))
	}
	return &printer{
		out:     out,
		status:  status,
		theme:   theme,
		width:   width,
		loading: color(theme.Loading),
		ok:      color(theme.Completed),
		failed:  color(theme.Failed),
		muted:   color(theme.Muted).Faint(true),
	}
}

// Event handles one turn event.
func (p *printer) Event(evt relay.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e := evt.(type) {
	case relay.EventTextDelta:
		fmt.Fprint(p.out, e.Delta)
		p.inText = true
	case relay.EventToolCall:
		p.endText()
		line := "▸ " + e.Name + " " + goldmark.Truncate(string(e.Arguments), p.width-len(e.Name)-3)
		fmt.Fprintln(p.status, p.loading.Render(line))
	case relay.EventToolResult:
		p.endText()
		if e.IsError {
			fmt.Fprintln(p.status, p.failed.Render("✗ "+e.Name))
			return
		}
		fmt.Fprintln(p.status, p.ok.Render("✓ "+e.Name))
	case relay.EventFinish:
		p.endText()
		usage := fmt.Sprintf("%s · %d in / %d out", e.Reason, e.Usage.InputTokens, e.Usage.OutputTokens)
		fmt.Fprintln(p.status, p.muted.Render(usage))
	}
}

// Retry reports a retry. Its signature matches retry.Observer.
func (p *printer) Retry(err *heal.RetryableError, attempt int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endText()
	line := fmt.Sprintf("↻ retry %d: %s", attempt, err.Kind)
	if len(err.Arguments) > 0 {
		line += " (arguments repaired)"
	}
	fmt.Fprintln(p.status, p.failed.Render(goldmark.Truncate(line, p.width)))
}

// Responses renders the final answers as markdown.
func (p *printer) Responses(entries []relay.ResponseEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endText()
	if out := goldmark.RenderResponses(entries, p.width, p.theme); out != "" {
		fmt.Fprintln(p.out, out)
	}
}

func (p *printer) endText() {
	if p.inText {
		fmt.Fprintln(p.out)
		p.inText = false
	}
}
