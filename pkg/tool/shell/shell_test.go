package shell

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kernelloop/assistant/pkg/tool"
)

func testEnv(t *testing.T) *tool.Environment {
	t.Helper()
	dir := t.TempDir()
	root, err := os.OpenRoot(dir)
	if err != nil {
		t.Fatalf("failed to open root: %v", err)
	}
	t.Cleanup(func() { root.Close() })
	return tool.NewEnvironment(dir, dir, root, root)
}

func TestShellToolCapturesStdoutAndStderr(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	env := testEnv(t)
	tl := ShellTool(Options{})

	result, err := tl.Execute(context.Background(), env, map[string]any{
		"command": "echo out-line; echo err-line 1>&2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "out-line") {
		t.Errorf("expected stdout captured, got: %s", result)
	}
	if !strings.Contains(result, "[stderr] err-line") {
		t.Errorf("expected tagged stderr line, got: %s", result)
	}
	if !strings.Contains(result, "Command exited with code 0") {
		t.Errorf("expected exit code line, got: %s", result)
	}
}

func TestShellToolReportsNonZeroExit(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	env := testEnv(t)
	tl := ShellTool(Options{})

	result, err := tl.Execute(context.Background(), env, map[string]any{
		"command": "exit 7",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "Command exited with code 7") {
		t.Errorf("expected exit code 7, got: %s", result)
	}
}

func TestShellToolTimeoutInterrupts(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	env := testEnv(t)
	tl := ShellTool(Options{})

	start := time.Now()
	result, err := tl.Execute(context.Background(), env, map[string]any{
		"command": "sleep 30",
		"timeout": float64(1),
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "COMMAND WAS INTERRUPTED") {
		t.Errorf("expected interruption sentinel, got: %s", result)
	}
	if elapsed > 10*time.Second {
		t.Errorf("expected the timeout+grace period to cut the sleep short, took %s", elapsed)
	}
}

func TestShellToolStopCheckerInterrupts(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	env := testEnv(t)
	checker := &stubChecker{stopAfter: 1}
	tl := ShellTool(Options{StopChecker: checker})

	result, err := tl.Execute(context.Background(), env, map[string]any{
		"command": "for i in $(seq 1 100); do echo line-$i; sleep 0.05; done",
		"timeout": float64(30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "COMMAND WAS INTERRUPTED") {
		t.Errorf("expected the stop checker to interrupt the run, got: %s", result)
	}
}

type stubChecker struct {
	calls     int
	stopAfter int
}

func (c *stubChecker) ShouldStop(ctx context.Context, linesSoFar int, recentOutput string) (bool, error) {
	c.calls++
	return c.calls > c.stopAfter, nil
}

func TestTruncateOutputPreservesHeadAndTail(t *testing.T) {
	big := strings.Repeat("a", maxOutputBytes) + strings.Repeat("b", maxOutputBytes)

	truncated, _ := truncateOutput(big, "")

	if !strings.HasPrefix(truncated, "aaaa") {
		t.Errorf("expected truncated output to keep the head")
	}
	if !strings.HasSuffix(truncated, "bbbb") {
		t.Errorf("expected truncated output to keep the tail")
	}
	if !strings.Contains(truncated, "TRUNCATED") {
		t.Errorf("expected a truncation marker, got: %.100s...", truncated)
	}
}

func TestIsSafeCommandRecognizesReadOnlyTools(t *testing.T) {
	cases := map[string]bool{
		"ls -la":            true,
		"cat file.txt":      true,
		"git status":        true,
		"git log --oneline": true,
		"git push origin":   false,
		"rm -rf /":          false,
		"npm install":       false,
		"npm list":          true,
	}

	for cmd, want := range cases {
		if got := isSafeCommand(cmd); got != want {
			t.Errorf("isSafeCommand(%q) = %v, want %v", cmd, got, want)
		}
	}
}
