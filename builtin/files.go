package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fwojciec/relay"
)

type createFilesArgs struct {
	Files []fileSpec `json:"files"`
}

type fileSpec struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// CreateFilesTool returns the tool definition for the create_files tool.
func CreateFilesTool() relay.Tool {
	return relay.Tool{
		Name:        "create_files",
		Description: "Create or overwrite one or more files. Paths are relative to the workspace.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"files": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"properties": {
							"path": {"type": "string", "description": "Relative file path"},
							"content": {"type": "string", "description": "File content"},
							"language": {"type": "string", "description": "Language for display"}
						},
						"required": ["path", "content"]
					}
				}
			},
			"required": ["files"]
		}`),
	}
}

// ExecuteCreateFiles writes every file under root. Paths that escape root are
// rejected before anything is written.
func ExecuteCreateFiles(_ context.Context, root string, args json.RawMessage) (*relay.ToolResult, error) {
	var a createFilesArgs
	if res := decodeArgs(args, &a); res != nil {
		return res, nil
	}
	if len(a.Files) == 0 {
		return domainError("files must contain at least one file"), nil
	}
	for _, f := range a.Files {
		if f.Path == "" {
			return domainError("path is required"), nil
		}
		if !filepath.IsLocal(f.Path) {
			return domainError(fmt.Sprintf("path must be relative to the workspace: %s", f.Path)), nil
		}
	}

	written := make([]string, 0, len(a.Files))
	for _, f := range a.Files {
		path := filepath.Join(root, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return domainError(fmt.Sprintf("failed to create directories: %s", err)), nil
		}

		perm := os.FileMode(0o644)
		if info, err := os.Stat(path); err == nil {
			perm = info.Mode().Perm()
		}
		if err := os.WriteFile(path, []byte(f.Content), perm); err != nil {
			return domainError(fmt.Sprintf("failed to write file: %s", err)), nil
		}
		written = append(written, f.Path)
	}
	return valueResult(map[string]any{"written": written}), nil
}
