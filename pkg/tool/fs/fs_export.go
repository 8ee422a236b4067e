package fs

import "strings"

// This file exposes the workspace-path validation and fuzzy-match/diff
// machinery fs's own tools use internally, so pkg/tool/patch can build a
// multi-hunk editor on the same primitives instead of duplicating them.

// EnsurePathInWorkspace validates pathArg is confined to workingDir and
// returns the os.Root-relative path to use for file operations.
func EnsurePathInWorkspace(pathArg, workingDir, action string) (string, error) {
	return ensurePathInWorkspace(pathArg, workingDir, action)
}

// PathError formats a read/write failure, including whether the path fell
// outside the workspace.
func PathError(action, originalPath, normalizedPath, workingDir string, err error) error {
	return pathError(action, originalPath, normalizedPath, workingDir, err)
}

// StripBOM splits off a leading UTF-8 byte-order mark, if present.
func StripBOM(content string) (bom string, text string) { return stripBom(content) }

// DetectLineEnding reports "\r\n" or "\n" depending on the file's
// dominant line ending.
func DetectLineEnding(content string) string { return detectLineEnding(content) }

// NormalizeToLF rewrites CRLF to LF for uniform matching.
func NormalizeToLF(text string) string { return normalizeToLF(text) }

// RestoreLineEndings rewrites LF back to the given original ending.
func RestoreLineEndings(text, ending string) string { return restoreLineEndings(text, ending) }

// FuzzyMatch reports whether oldText occurs in content, preferring an
// exact match and falling back to a whitespace/unicode-normalized match.
// index/length describe the span in content (not the normalized form).
type FuzzyMatch struct {
	Found   bool
	Index   int
	Length  int
	IsFuzzy bool
}

func FindFuzzyMatch(content, oldText string) FuzzyMatch {
	r := fuzzyFindText(content, oldText)
	return FuzzyMatch{Found: r.found, Index: r.index, Length: r.matchLength, IsFuzzy: r.usedFuzzyMatch}
}

// CountFuzzyOccurrences counts how many times oldText occurs in content
// under the same whitespace/unicode normalization FindFuzzyMatch applies,
// used to reject an ambiguous (non-unique) hunk target.
func CountFuzzyOccurrences(content, oldText string) int {
	fuzzyContent := normalizeForFuzzyMatch(content)
	fuzzyOldText := normalizeForFuzzyMatch(oldText)
	return strings.Count(fuzzyContent, fuzzyOldText)
}

// GenerateDiff renders a unified, line-numbered diff between oldContent
// and newContent for inclusion in a tool result.
func GenerateDiff(oldContent, newContent string) string {
	return generateDiffString(oldContent, newContent)
}
