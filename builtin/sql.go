package builtin

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/turn"
)

const defaultMaxRows = 100

type executeSQLArgs struct {
	Description string `json:"description"`
	Statements  any    `json:"statements"`
}

// statementResult is the outcome of one statement. Queries fill Columns and
// Rows; everything else reports RowsAffected.
type statementResult struct {
	Statement    string   `json:"statement"`
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	Truncated    bool     `json:"truncated,omitempty"`
	RowsAffected *int64   `json:"rows_affected,omitempty"`
}

// ExecuteSQLTool returns the tool definition for the execute_sql tool.
func ExecuteSQLTool() relay.Tool {
	return relay.Tool{
		Name:        "execute_sql",
		Description: "Run SQL statements in order against the analysis database. Execution stops at the first failing statement.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"description": {
					"type": "string",
					"description": "Short description of what the statements do"
				},
				"statements": {
					"type": "array",
					"minItems": 1,
					"items": {"type": "string"},
					"description": "SQL statements to run in order"
				}
			},
			"required": ["statements"]
		}`),
	}
}

// ExecuteSQL runs each statement against db. A stringified array of
// statements is accepted as well as a real one.
func ExecuteSQL(ctx context.Context, db *sql.DB, maxRows int, args json.RawMessage) (*relay.ToolResult, error) {
	var a executeSQLArgs
	if res := decodeArgs(args, &a); res != nil {
		return res, nil
	}
	stmts := turn.Statements(a.Statements)
	if len(stmts) == 0 {
		return domainError("statements must contain at least one statement"), nil
	}

	results := make([]statementResult, 0, len(stmts))
	for i, stmt := range stmts {
		var (
			res statementResult
			err error
		)
		if returnsRows(stmt) {
			res, err = query(ctx, db, stmt, maxRows)
		} else {
			res, err = exec(ctx, db, stmt)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("execute_sql: %w", ctx.Err())
			}
			return domainError(fmt.Sprintf("statement %d (%s): %s", i+1, stmt, err)), nil
		}
		results = append(results, res)
	}
	return valueResult(map[string]any{"results": results}), nil
}

func returnsRows(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES":
		return true
	}
	return false
}

func exec(ctx context.Context, db *sql.DB, stmt string) (statementResult, error) {
	r, err := db.ExecContext(ctx, stmt)
	if err != nil {
		return statementResult{}, err
	}
	res := statementResult{Statement: stmt}
	if n, err := r.RowsAffected(); err == nil {
		res.RowsAffected = &n
	}
	return res, nil
}

func query(ctx context.Context, db *sql.DB, stmt string, maxRows int) (statementResult, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return statementResult{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return statementResult{}, err
	}
	res := statementResult{Statement: stmt, Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) == maxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return statementResult{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}
