package relay

// ReasoningType selects which fields of a ReasoningEntry are meaningful.
type ReasoningType string

const (
	ReasoningText  ReasoningType = "text"
	ReasoningFiles ReasoningType = "files"
	ReasoningPills ReasoningType = "pills"
)

// ReasoningStatus is the lifecycle state of a reasoning entry.
type ReasoningStatus string

const (
	StatusLoading   ReasoningStatus = "loading"
	StatusCompleted ReasoningStatus = "completed"
	StatusFailed    ReasoningStatus = "failed"
)

// Artifact is one file in a files reasoning entry.
type Artifact struct {
	Name     string
	Content  string
	Language string
}

// ReasoningEntry describes one in-progress or completed agent action. ID is
// the originating tool-call id.
type ReasoningEntry struct {
	ID       string
	Type     ReasoningType
	Title    string
	Body     string     // text
	Files    []Artifact // files
	Pills    []string   // pills
	Finished bool
	Status   ReasoningStatus
	Elapsed  string
}

// ResponseEntry is a final, user-visible answer produced by a finishing tool.
type ResponseEntry struct {
	ID       string
	ToolName string
	Text     string
}
