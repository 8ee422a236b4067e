// Package shell runs a subprocess under the same process-group supervision
// as the teacher's shell.go, extended with PTY mode, chronological
// stdout/stderr line tagging, and interruption from three independent
// triggers instead of one bare timeout.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/kernelloop/assistant/pkg/tool"
)

const (
	defaultTimeout   = 120
	maxOutputBytes   = 50 * 1024
	maxBufferedLines = 4000
	stopCheckEvery   = 20
	interruptGrace   = 3 * time.Second
)

// ShouldStopChecker lets a long command be cut short by judgment on its
// output so far, independent of the timeout and the caller's own
// cancellation. A nil checker disables this trigger entirely.
type ShouldStopChecker interface {
	ShouldStop(ctx context.Context, linesSoFar int, recentOutput string) (bool, error)
}

// Options configures the shell tool beyond its per-invocation arguments.
type Options struct {
	StopChecker ShouldStopChecker
}

func Tools(opts Options) []tool.Tool {
	return []tool.Tool{ShellTool(opts)}
}

func ShellTool(opts Options) tool.Tool {
	return tool.Tool{
		Name:        "shell",
		Description: "Execute a shell command. Runs in the working directory; on Unix uses $SHELL or /bin/sh, on Windows uses PowerShell. Stdout and stderr are captured chronologically, tagged by stream. Set `pty` for programs that require an interactive terminal. Long-running commands may be interrupted by the timeout, cancellation, or an output-based stop check.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The shell command to execute",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Timeout in seconds (default: %d)", defaultTimeout),
				},
				"pty": map[string]any{
					"type":        "boolean",
					"description": "Run the command attached to a pseudo-terminal instead of plain pipes",
				},
			},
			"required": []string{"command"},
		},
		Capabilities: tool.Capabilities{Network: true, LongRunning: true},
		Execute: func(ctx context.Context, env *tool.Environment, args map[string]any) (string, error) {
			return execute(ctx, env, args, opts)
		},
	}
}

func execute(ctx context.Context, env *tool.Environment, args map[string]any, opts Options) (string, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return "", fmt.Errorf("command is required")
	}

	timeout := defaultTimeout
	if t, ok := args["timeout"].(float64); ok && t > 0 {
		timeout = int(t)
	}
	usePTY, _ := args["pty"].(bool)

	if env.PromptUser != nil && !isSafeCommand(command) {
		approved, err := env.PromptUser("$" + command)
		if err != nil {
			return "", fmt.Errorf("failed to get user approval: %w", err)
		}
		if !approved {
			return "", fmt.Errorf("command execution denied by user")
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := buildCommand(runCtx, command, env.WorkingDir())

	rec := newRecorder()

	var (
		exitCode    int
		interrupted bool
		runErr      error
	)
	if usePTY {
		exitCode, interrupted, runErr = runPTY(runCtx, cmd, rec, opts.StopChecker)
	} else {
		exitCode, interrupted, runErr = runPipes(runCtx, cmd, rec, opts.StopChecker)
	}
	if runErr != nil {
		return "", runErr
	}

	text := strings.ToValidUTF8(rec.render(), "�")
	truncated, tempFile := truncateOutput(text, env.ScratchDir())

	var sb strings.Builder
	sb.WriteString(truncated)

	if tempFile != "" {
		fmt.Fprintf(&sb, "\n\n[Output truncated. Full output saved to: %s]", tempFile)
	}

	if interrupted {
		sb.WriteString("\n\n[COMMAND WAS INTERRUPTED: timeout, cancellation, or output-based stop check triggered before completion]")
	} else {
		fmt.Fprintf(&sb, "\n\nCommand exited with code %d", exitCode)
	}

	return sb.String(), nil
}

func buildCommand(ctx context.Context, command, workingDir string) *exec.Cmd {
	var cmd *exec.Cmd

	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "powershell", "-NoProfile", "-NoLogo", "-NonInteractive", "-Command", command)
	} else {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		cmd = exec.CommandContext(ctx, shell, "-c", command)
	}

	cmd.Dir = workingDir
	setupProcessGroup(cmd)

	return cmd
}

// lineRecord tags one line of output by the stream it came from, so a
// rendered transcript preserves the order stdout and stderr actually
// interleaved in rather than grouping them.
type lineRecord struct {
	stream string
	text   string
}

// recorder accumulates output chronologically behind a bounded ring buffer;
// it is written to concurrently by the stdout/stderr reader goroutines and
// read by the periodic stop-check and the final render.
type recorder struct {
	mu    sync.Mutex
	lines []lineRecord
	total int
}

func newRecorder() *recorder { return &recorder{} }

func (r *recorder) addLine(stream, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, lineRecord{stream: stream, text: strings.ToValidUTF8(text, "�")})
	r.total++
	if len(r.lines) > maxBufferedLines {
		r.lines = r.lines[len(r.lines)-maxBufferedLines:]
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *recorder) recentText(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.lines) {
		n = len(r.lines)
	}
	var sb strings.Builder
	for _, l := range r.lines[len(r.lines)-n:] {
		sb.WriteString(l.text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (r *recorder) render() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	for _, l := range r.lines {
		if l.stream == "stderr" {
			sb.WriteString("[stderr] ")
		}
		sb.WriteString(l.text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func streamLines(wg *sync.WaitGroup, r io.Reader, stream string, rec *recorder) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		rec.addLine(stream, scanner.Text())
	}
}

// runPipes drives the command via separate stdout/stderr pipes, watching
// for the three interrupt triggers: context cancellation (covers both the
// timeout and an upstream Ctrl-C), and a periodic StopChecker consultation.
func runPipes(ctx context.Context, cmd *exec.Cmd, rec *recorder, checker ShouldStopChecker) (int, bool, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, false, fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, false, fmt.Errorf("failed to attach stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return -1, false, fmt.Errorf("failed to start command: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdout, "stdout", rec)
	go streamLines(&wg, stderr, "stderr", rec)

	waitDone := make(chan error, 1)
	go func() {
		wg.Wait()
		waitDone <- cmd.Wait()
	}()

	return supervise(ctx, cmd, rec, checker, waitDone)
}

// runPTY behaves like runPipes but attaches the command to a pseudo
// terminal, for programs that refuse to run without one.
func runPTY(ctx context.Context, cmd *exec.Cmd, rec *recorder, checker ShouldStopChecker) (int, bool, error) {
	f, err := pty.Start(cmd)
	if err != nil {
		return -1, false, fmt.Errorf("failed to start pty: %w", err)
	}
	defer f.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go streamLines(&wg, f, "pty", rec)

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
		f.Close()
		wg.Wait()
	}()

	return supervise(ctx, cmd, rec, checker, waitDone)
}

func supervise(ctx context.Context, cmd *exec.Cmd, rec *recorder, checker ShouldStopChecker, waitDone chan error) (int, bool, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastChecked := 0

	for {
		select {
		case err := <-waitDone:
			return extractExitCode(err), false, nil

		case <-ctx.Done():
			return interruptAndWait(cmd, waitDone), true, nil

		case <-ticker.C:
			if checker == nil {
				continue
			}
			n := rec.count()
			if n == 0 || n-lastChecked < stopCheckEvery {
				continue
			}
			lastChecked = n

			stop, err := checker.ShouldStop(ctx, n, rec.recentText(stopCheckEvery))
			if err != nil || !stop {
				continue
			}
			return interruptAndWait(cmd, waitDone), true, nil
		}
	}
}

// interruptAndWait sends SIGINT (or its Windows analogue) and escalates to
// SIGKILL if the process hasn't exited within the grace period.
func interruptAndWait(cmd *exec.Cmd, waitDone chan error) int {
	interruptProcessGroup(cmd)

	select {
	case err := <-waitDone:
		return extractExitCode(err)
	case <-time.After(interruptGrace):
		killProcessGroup(cmd)
		return extractExitCode(<-waitDone)
	}
}

func extractExitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// truncateOutput preserves both the head and tail of long output instead of
// the teacher's tail-only truncation, since the beginning of a long build
// or test run is often as diagnostic as the end.
func truncateOutput(output, scratchDir string) (truncated string, tempFile string) {
	if len(output) <= maxOutputBytes {
		return output, ""
	}

	if scratchDir != "" {
		tempFile = filepath.Join(scratchDir, fmt.Sprintf("output-%d.txt", time.Now().UnixNano()))
		os.WriteFile(tempFile, []byte(output), 0644)
	}

	head := maxOutputBytes / 2
	tail := maxOutputBytes - head
	dropped := len(output) - maxOutputBytes

	marker := fmt.Sprintf("\n[...TRUNCATED %d BYTES...]\n", dropped)
	truncated = strings.ToValidUTF8(output[:head], "�") + marker + strings.ToValidUTF8(output[len(output)-tail:], "�")

	return truncated, tempFile
}

// isSafeCommand reports whether command's leading program (and, where the
// table distinguishes it, subcommand) is known read-only, letting the
// caller skip an interactive approval prompt for it.
func isSafeCommand(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}

	base := filepath.Base(fields[0])

	for _, c := range safeCommands {
		if strings.EqualFold(base, c) {
			return true
		}
	}

	rest := strings.Join(fields[1:], " ")
	for _, key := range []string{base, strings.ToLower(base)} {
		subs, ok := safeSubcommands[key]
		if !ok {
			continue
		}
		for _, s := range subs {
			if strings.HasPrefix(rest, s) {
				return true
			}
		}
	}

	return false
}
