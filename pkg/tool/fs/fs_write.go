package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/kernelloop/assistant/pkg/tool"
)

type writeResult struct {
	WrittenBytes int `json:"written_bytes"`
}

func WriteTool() tool.Tool {
	return tool.Tool{
		Name: "write",

		Description: `Write content to a file. Creates the file if it doesn't exist, overwrites if it does. Automatically creates parent directories. Returns {"written_bytes": N}.`,

		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Path to the file to write"},
				"content": map[string]any{"type": "string", "description": "Content to write to the file"},
			},
			"required": []string{"path", "content"},
		},

		Capabilities: tool.Capabilities{MutatesFilesystem: true},

		Execute: func(ctx context.Context, env *tool.Environment, args map[string]any) (string, error) {
			pathArg, ok := args["path"].(string)

			if !ok || pathArg == "" {
				return "", fmt.Errorf("path is required")
			}

			workingDir := env.WorkingDir()

			normalizedPath, err := ensurePathInWorkspace(pathArg, workingDir, "write file")

			if err != nil {
				return "", err
			}

			content, ok := args["content"].(string)

			if !ok {
				return "", fmt.Errorf("content is required")
			}

			dir := filepath.Dir(normalizedPath)

			if dir != "." && dir != "" {
				if err := env.Root.MkdirAll(dir, 0755); err != nil {
					return "", pathError("create directory", pathArg, normalizedPath, workingDir, err)
				}
			}

			file, err := env.Root.Create(normalizedPath)

			if err != nil {
				return "", pathError("create file", pathArg, normalizedPath, workingDir, err)
			}

			defer file.Close()

			if _, err := file.WriteString(content); err != nil {
				return "", fmt.Errorf("failed to write file: %w", err)
			}

			out, err := json.Marshal(writeResult{WrittenBytes: len(content)})
			if err != nil {
				return "", fmt.Errorf("failed to encode result: %w", err)
			}

			return string(out), nil
		},
	}
}
