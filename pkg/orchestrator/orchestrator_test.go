package orchestrator

import (
	"context"
	"errors"
	"iter"
	"os"
	"testing"
	"time"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

// stubProvider answers every request with a single fixed text reply and no
// tool calls, enough to drive a node's agent loop to a clean completion.
type stubProvider struct {
	text string
	err  error
}

func (s *stubProvider) Send(ctx context.Context, req provider.Request) iter.Seq2[provider.Event, error] {
	return func(yield func(provider.Event, error) bool) {
		if s.err != nil {
			yield(provider.Event{}, s.err)
			return
		}
		if !yield(provider.Event{Type: provider.EventTextDelta, Text: s.text}, nil) {
			return
		}
		yield(provider.Event{Type: provider.EventTurnEnd, FinishReason: provider.FinishStop, Usage: convo.Usage{PromptTokens: 10}}, nil)
	}
}

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

func TestManagerSpawnCompletesSuccessfully(t *testing.T) {
	mgr := NewManager()
	tmpl := Template{
		Provider: &stubProvider{text: "the answer is 42"},
		Model:    "test-model",
		Env:      testEnv(t),
	}

	node, err := mgr.Spawn(context.Background(), tmpl, "researcher", "what is the answer?", nil, time.Second*5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mgr.Wait(context.Background(), []string{node.ID})

	if node.Status() != StatusCompleted {
		t.Fatalf("expected completed status, got %s", node.Status())
	}

	text, errMsg := node.Result()
	if errMsg != "" {
		t.Fatalf("expected no error message, got %q", errMsg)
	}
	if text != "the answer is 42" {
		t.Fatalf("expected result text, got %q", text)
	}
}

func TestManagerSpawnRecordsFailure(t *testing.T) {
	mgr := NewManager()
	tmpl := Template{
		Provider: &stubProvider{err: errors.New("boom")},
		Model:    "test-model",
		Env:      testEnv(t),
	}

	node, err := mgr.Spawn(context.Background(), tmpl, "coder", "do something", nil, time.Second*5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mgr.Wait(context.Background(), []string{node.ID})

	if node.Status() != StatusFailed {
		t.Fatalf("expected failed status, got %s", node.Status())
	}

	_, errMsg := node.Result()
	if errMsg == "" {
		t.Fatal("expected an error message")
	}
}

func TestManagerRejectsEmptyObjective(t *testing.T) {
	mgr := NewManager()
	tmpl := Template{Provider: &stubProvider{text: "x"}, Env: testEnv(t)}

	_, err := mgr.Spawn(context.Background(), tmpl, "coder", "   ", nil, time.Second)
	if err == nil {
		t.Fatal("expected error for empty objective")
	}
}

func TestManagerEnforcesParallelLimit(t *testing.T) {
	mgr := NewManager()
	mgr.maxParallel = 1
	mgr.add(&Node{ID: "already-running", status: StatusRunning, done: make(chan struct{})})

	tmpl := Template{Provider: &stubProvider{text: "x"}, Env: testEnv(t)}

	_, err := mgr.Spawn(context.Background(), tmpl, "coder", "second task", nil, time.Second)
	if err == nil {
		t.Fatal("expected parallel limit error while another node is running")
	}
}

// gatedProvider blocks its first Send call until proceed is closed, giving
// a test a window to call SendInput before the child's first turn ends.
type gatedProvider struct {
	calls   int
	started chan struct{}
	proceed chan struct{}
	turns   [][]provider.Event
}

func (p *gatedProvider) Send(ctx context.Context, req provider.Request) iter.Seq2[provider.Event, error] {
	return func(yield func(provider.Event, error) bool) {
		idx := p.calls
		p.calls++
		if idx == 0 {
			close(p.started)
			<-p.proceed
		}
		for _, ev := range p.turns[idx] {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func TestSendInputInjectsMessageAndChildContinues(t *testing.T) {
	p := &gatedProvider{
		started: make(chan struct{}),
		proceed: make(chan struct{}),
		turns: [][]provider.Event{
			{{Type: provider.EventTextDelta, Text: "first"}, {Type: provider.EventTurnEnd, Usage: convo.Usage{PromptTokens: 10}}},
			{{Type: provider.EventTextDelta, Text: "second"}, {Type: provider.EventTurnEnd, Usage: convo.Usage{PromptTokens: 10}}},
		},
	}

	mgr := NewManager()
	tmpl := Template{Provider: p, Model: "test-model", Env: testEnv(t)}

	node, err := mgr.Spawn(context.Background(), tmpl, "researcher", "start", nil, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-p.started
	if err := node.SendInput("extra context"); err != nil {
		t.Fatalf("unexpected SendInput error: %v", err)
	}
	close(p.proceed)

	mgr.Wait(context.Background(), []string{node.ID})

	if node.Status() != StatusCompleted {
		t.Fatalf("expected completed status, got %s", node.Status())
	}

	text, errMsg := node.Result()
	if errMsg != "" {
		t.Fatalf("expected no error message, got %q", errMsg)
	}
	if text != "firstsecond" {
		t.Fatalf("expected the child to run a second turn after the injection, got %q", text)
	}

	var sawInjected bool
	for _, msg := range node.agent.Messages() {
		for _, part := range msg.Parts {
			if part.Text != nil && *part.Text == "extra context" {
				sawInjected = true
			}
		}
	}
	if !sawInjected {
		t.Fatal("expected the injected message to appear in the child's conversation")
	}
}

func TestManagerEnforcesDepthLimit(t *testing.T) {
	mgr := NewManager()
	mgr.maxDepth = 1
	tmpl := Template{Provider: &stubProvider{text: "x"}, Env: testEnv(t)}

	ctx := withDepth(context.Background(), 1)
	_, err := mgr.Spawn(ctx, tmpl, "coder", "go deeper", nil, time.Second)
	if err == nil {
		t.Fatal("expected depth limit error")
	}
}
