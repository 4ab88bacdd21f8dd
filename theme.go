package relay

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	Loading   int // Reasoning entries still running
	Completed int // Reasoning entries that succeeded
	Failed    int // Reasoning entries that failed, retry notices
	Muted     int // Elapsed labels, pills
	Response  int // Final answers
	Accent    int // Headings, links
	CodeBg    int // Code block background
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Loading:   3,
		Completed: 2,
		Failed:    1,
		Muted:     8,
		Response:  7,
		Accent:    5,
		CodeBg:    0,
	}
}

// StatusColor returns the theme color for a reasoning status.
func (t Theme) StatusColor(s ReasoningStatus) int {
	switch s {
	case StatusCompleted:
		return t.Completed
	case StatusFailed:
		return t.Failed
	default:
		return t.Loading
	}
}
