package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/relay"
)

const maxMatches = 200

type findFilesArgs struct {
	Patterns []string `json:"patterns"`
}

// FindFilesTool returns the tool definition for the find_files tool.
func FindFilesTool() relay.Tool {
	return relay.Tool{
		Name:        "find_files",
		Description: "Find workspace files matching glob patterns. Supports ** for recursive matching.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"patterns": {
					"type": "array",
					"minItems": 1,
					"items": {"type": "string"},
					"description": "Glob patterns to match files (e.g. **/*.csv)"
				}
			},
			"required": ["patterns"]
		}`),
	}
}

// ExecuteFindFiles returns the sorted, de-duplicated files under root that
// match any of the patterns.
func ExecuteFindFiles(ctx context.Context, root string, args json.RawMessage) (*relay.ToolResult, error) {
	var a findFilesArgs
	if res := decodeArgs(args, &a); res != nil {
		return res, nil
	}
	if len(a.Patterns) == 0 {
		return domainError("patterns must contain at least one pattern"), nil
	}
	for _, p := range a.Patterns {
		if !doublestar.ValidatePattern(p) {
			return domainError(fmt.Sprintf("invalid glob pattern: %s", p)), nil
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return domainError(fmt.Sprintf("failed to access workspace: %s", err)), nil
	}
	if !info.IsDir() {
		return domainError("workspace must be a directory"), nil
	}

	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var matches []string
	for _, p := range a.Patterns {
		err := doublestar.GlobWalk(fsys, p, func(path string, d iofs.DirEntry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || seen[path] {
				return nil
			}
			seen[path] = true
			matches = append(matches, filepath.FromSlash(path))
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("find_files: %w", ctx.Err())
			}
			return domainError(fmt.Sprintf("pattern %s did not match: %s", p, err)), nil
		}
	}
	slices.Sort(matches)

	truncated := len(matches) > maxMatches
	if truncated {
		matches = matches[:maxMatches]
	}
	if matches == nil {
		matches = []string{}
	}
	return valueResult(map[string]any{"files": matches, "truncated": truncated}), nil
}
