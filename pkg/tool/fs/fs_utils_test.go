package fs

import (
	"strings"
	"testing"
)

func TestWorkspaceConfinement(t *testing.T) {
	const workingDir = "/home/user/project"

	cases := []struct {
		name       string
		path       string
		outside    bool
		normalized string
	}{
		{name: "relative path", path: "src/main.go", outside: false, normalized: "src/main.go"},
		{name: "absolute path inside workspace", path: "/home/user/project/src/main.go", outside: false, normalized: "src/main.go"},
		{name: "absolute path is workspace root", path: "/home/user/project", outside: false, normalized: "."},
		{name: "absolute path outside workspace", path: "/etc/passwd", outside: true, normalized: "/etc/passwd"},
		{name: "sibling directory with matching prefix", path: "/home/user/project-evil/x", outside: true, normalized: "/home/user/project-evil/x"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isOutsideWorkspace(tc.path, workingDir); got != tc.outside {
				t.Errorf("isOutsideWorkspace(%q) = %v, want %v", tc.path, got, tc.outside)
			}
			if got := normalizePath(tc.path, workingDir); got != tc.normalized {
				t.Errorf("normalizePath(%q) = %q, want %q", tc.path, got, tc.normalized)
			}
		})
	}
}

func TestTruncateHeadRespectsBothLimits(t *testing.T) {
	t.Run("under both limits passes through untouched", func(t *testing.T) {
		result, byLines, byBytes := truncateHead("line1\nline2\nline3")
		if byLines || byBytes {
			t.Fatalf("expected no truncation, got byLines=%v byBytes=%v", byLines, byBytes)
		}
		if result != "line1\nline2\nline3" {
			t.Errorf("expected content unchanged, got %q", result)
		}
	})

	t.Run("over the line limit truncates by lines", func(t *testing.T) {
		lines := make([]string, DefaultMaxLines+10)
		for i := range lines {
			lines[i] = "x"
		}
		_, byLines, byBytes := truncateHead(strings.Join(lines, "\n"))
		if !byLines {
			t.Error("expected byLines truncation")
		}
		if byBytes {
			t.Error("did not expect byBytes truncation for this input")
		}
	})

	t.Run("over the byte limit truncates by bytes even under the line limit", func(t *testing.T) {
		content := strings.Repeat("a", DefaultMaxBytes+100)
		_, byLines, byBytes := truncateHead(content)
		if byLines {
			t.Error("single-line content should never trip byLines")
		}
		if !byBytes {
			t.Error("expected byBytes truncation")
		}
	})
}

func TestLineEndingRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		content string
		ending  string
	}{
		{name: "CRLF file", content: "a\r\nb\r\nc", ending: "\r\n"},
		{name: "LF file", content: "a\nb\nc", ending: "\n"},
		{name: "single line, no ending", content: "a", ending: "\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectLineEnding(tc.content); got != tc.ending {
				t.Errorf("detectLineEnding(%q) = %q, want %q", tc.content, got, tc.ending)
			}

			normalized := normalizeToLF(tc.content)
			if strings.Contains(normalized, "\r") {
				t.Errorf("normalizeToLF(%q) left a CR: %q", tc.content, normalized)
			}

			restored := restoreLineEndings(normalized, tc.ending)
			if restored != tc.content {
				t.Errorf("round trip failed: got %q, want %q", restored, tc.content)
			}
		})
	}
}

func TestStripBom(t *testing.T) {
	bom, text := stripBom("﻿hello")
	if bom != "﻿" || text != "hello" {
		t.Errorf("stripBom with BOM = (%q, %q)", bom, text)
	}

	bom, text = stripBom("hello")
	if bom != "" || text != "hello" {
		t.Errorf("stripBom without BOM = (%q, %q)", bom, text)
	}
}

func TestFuzzyMatchToleratesLLMTypography(t *testing.T) {
	content := "func Greet() {\n\treturn “hello”\n}"

	t.Run("exact match found without fuzzing", func(t *testing.T) {
		r := fuzzyFindText(content, "func Greet()")
		if !r.found || r.usedFuzzyMatch {
			t.Errorf("expected an exact match, got %+v", r)
		}
	})

	t.Run("smart-quote variant still matches", func(t *testing.T) {
		r := fuzzyFindText(content, `return "hello"`)
		if !r.found {
			t.Fatal("expected a fuzzy match tolerating smart quotes")
		}
		if !r.usedFuzzyMatch {
			t.Error("expected usedFuzzyMatch to be true for a smart-quote difference")
		}
	})

	t.Run("no match", func(t *testing.T) {
		r := fuzzyFindText(content, "nonexistent snippet")
		if r.found {
			t.Error("expected no match")
		}
	})
}

func TestGenerateDiffStringMarksChangedLines(t *testing.T) {
	diff := generateDiffString("line1\nline2\nline3", "line1\nCHANGED\nline3")
	if !strings.Contains(diff, "line2") || !strings.Contains(diff, "CHANGED") {
		t.Errorf("expected diff to reference both old and new lines, got: %s", diff)
	}
}

func TestIsBinaryFile(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"main.go", false},
		{"README.md", false},
		{"data.json", false},
		{"photo.png", true},
		{"archive.zip", true},
		{"binary.exe", true},
		{"noext", false},
	}

	for _, tc := range cases {
		if got := isBinaryFile(tc.path); got != tc.want {
			t.Errorf("isBinaryFile(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
