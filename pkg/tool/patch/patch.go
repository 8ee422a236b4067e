// Package patch implements the multi-hunk file editor, generalizing the
// teacher's single-hunk fs_edit.go to a sequence of {before, after} hunks
// applied atomically against one file, reusing fs's fuzzy-match, BOM, and
// diff machinery rather than duplicating it.
package patch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kernelloop/assistant/pkg/tool"
	"github.com/kernelloop/assistant/pkg/tool/fs"
)

func Tools() []tool.Tool {
	return []tool.Tool{PatchTool()}
}

type hunkInput struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

type rejection struct {
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
	Matches int    `json:"matches,omitempty"`
}

func PatchTool() tool.Tool {
	return tool.Tool{
		Name: "patch",

		Description: "Apply one or more find-and-replace hunks to a file. Each hunk's `before` text must match a unique location in the file (exact or whitespace-fuzzy). Hunks apply independently: one failing to match does not block the others, but the file is written in a single atomic swap covering whichever hunks succeeded.",

		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Path to the file to patch"},
				"hunks": map[string]any{
					"type":        "array",
					"description": "Ordered list of edits to apply",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"before": map[string]any{"type": "string", "description": "Exact or near-exact text to find"},
							"after":  map[string]any{"type": "string", "description": "Text to replace it with"},
						},
						"required": []string{"before", "after"},
					},
				},
			},
			"required": []string{"path", "hunks"},
		},

		Capabilities: tool.Capabilities{MutatesFilesystem: true},

		Execute: execute,
	}
}

func execute(ctx context.Context, env *tool.Environment, args map[string]any) (string, error) {
	pathArg, ok := args["path"].(string)
	if !ok || pathArg == "" {
		return "", fmt.Errorf("path is required")
	}

	hunks, err := parseHunks(args["hunks"])
	if err != nil {
		return "", err
	}
	if len(hunks) == 0 {
		return "", fmt.Errorf("hunks must be a non-empty array")
	}

	workingDir := env.WorkingDir()

	normalizedPath, err := fs.EnsurePathInWorkspace(pathArg, workingDir, "patch file")
	if err != nil {
		return "", err
	}

	contentBytes, err := env.Root.ReadFile(normalizedPath)
	if err != nil {
		return "", fs.PathError("read file", pathArg, normalizedPath, workingDir, err)
	}

	bom, stripped := fs.StripBOM(string(contentBytes))
	originalEnding := fs.DetectLineEnding(stripped)
	content := fs.NormalizeToLF(stripped)
	original := content

	var rejections []rejection
	applied := 0

	// Hunks apply independently against the file as it stands after each
	// prior successful hunk: one hunk's ambiguous or missing match rejects
	// only that hunk, not the whole batch, so a caller sending several
	// edits in one call still gets the unambiguous ones committed.
	for i, h := range hunks {
		before := fs.NormalizeToLF(h.Before)
		after := fs.NormalizeToLF(h.After)

		if occurrences := fs.CountFuzzyOccurrences(content, before); occurrences > 1 {
			rejections = append(rejections, rejection{Index: i, Reason: "ambiguous", Matches: occurrences})
			continue
		}

		match := fs.FindFuzzyMatch(content, before)
		if !match.Found {
			rejections = append(rejections, rejection{Index: i, Reason: "no match found"})
			continue
		}

		content = content[:match.Index] + after + content[match.Index+match.Length:]
		applied++
	}

	if applied == 0 {
		report, _ := json.MarshalIndent(rejections, "", "  ")
		return "", fmt.Errorf("patch rejected for %s, no changes applied:\n%s", pathArg, report)
	}

	finalContent := bom + fs.RestoreLineEndings(content, originalEnding)

	if err := writeAtomic(env, normalizedPath, finalContent); err != nil {
		return "", fs.PathError("write file", pathArg, normalizedPath, workingDir, err)
	}

	diff := fs.GenerateDiff(original, content)

	summary := struct {
		Applied  int        `json:"applied"`
		Rejected []rejection `json:"rejected,omitempty"`
	}{Applied: applied, Rejected: rejections}
	report, _ := json.Marshal(summary)

	return fmt.Sprintf("Applied %d/%d hunk(s) to %s: %s\n\n%s", applied, len(hunks), pathArg, report, diff), nil
}

// writeAtomic writes content to a sibling temp file, fsyncs it, then
// renames it over the target, so a crash mid-write never leaves a
// partially-applied multi-hunk patch on disk. normalizedPath has already
// been validated against the workspace by fs.EnsurePathInWorkspace, so
// joining it with the workspace root here does not reopen a traversal
// path; os.Root itself does not expose Rename, so the swap uses the
// standard os package against the resolved absolute path.
func writeAtomic(env *tool.Environment, normalizedPath, content string) error {
	absPath := filepath.Join(env.WorkingDir(), normalizedPath)
	dir := filepath.Dir(absPath)

	tmp, err := os.CreateTemp(dir, ".patch-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, absPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return nil
}

func parseHunks(raw any) ([]hunkInput, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("hunks must be an array")
	}

	hunks := make([]hunkInput, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each hunk must be an object with before/after")
		}

		before, _ := obj["before"].(string)
		after, _ := obj["after"].(string)

		if before == "" {
			return nil, fmt.Errorf("hunk before text is required")
		}

		hunks = append(hunks, hunkInput{Before: before, After: after})
	}

	return hunks, nil
}
