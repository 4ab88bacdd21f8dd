package builtin

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fwojciec/relay"
)

// Compile-time interface check.
var _ relay.ToolExecutor = (*Executor)(nil)

// Executor dispatches tool calls to the appropriate built-in tool implementation.
type Executor struct {
	root    string
	db      *sql.DB
	maxRows int
	logger  *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRoot sets the directory that create_files writes into and find_files
// searches. Defaults to the working directory.
func WithRoot(dir string) Option {
	return func(e *Executor) { e.root = dir }
}

// WithDB sets the database execute_sql runs against. Without one, the
// execute_sql tool is not offered.
func WithDB(db *sql.DB) Option {
	return func(e *Executor) { e.db = db }
}

// WithMaxRows caps the rows returned per query. Defaults to 100.
func WithMaxRows(n int) Option {
	return func(e *Executor) { e.maxRows = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates a new Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{root: ".", maxRows: defaultMaxRows, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute dispatches a tool call by name. Unknown tool names return an IsError
// result so the model can self-correct.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage) (*relay.ToolResult, error) {
	e.logger.DebugContext(ctx, "executing tool", "tool", name)
	switch name {
	case "think":
		return ExecuteThink(ctx, args)
	case "create_files":
		return ExecuteCreateFiles(ctx, e.root, args)
	case "execute_sql":
		if e.db == nil {
			return domainError("execute_sql is not available: no database configured"), nil
		}
		return ExecuteSQL(ctx, e.db, e.maxRows, args)
	case "find_files":
		return ExecuteFindFiles(ctx, e.root, args)
	case "create_chart":
		return ExecuteCreateChart(ctx, args)
	case "done":
		return ExecuteDone(ctx, args)
	case "respond_without_analysis":
		return ExecuteRespondWithoutAnalysis(ctx, args)
	default:
		return domainError(fmt.Sprintf("unknown tool: %s", name)), nil
	}
}

// Tools returns the tool definitions for all built-in tools.
func (e *Executor) Tools() []relay.Tool {
	tools := []relay.Tool{ThinkTool(), CreateFilesTool(), FindFilesTool(), CreateChartTool()}
	if e.db != nil {
		tools = append(tools, ExecuteSQLTool())
	}
	return append(tools, DoneTool(), RespondWithoutAnalysisTool())
}
