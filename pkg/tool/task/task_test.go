package task

import (
	"context"
	"iter"
	"os"
	"testing"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/orchestrator"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

type stubProvider struct {
	text string
}

func (s *stubProvider) Send(ctx context.Context, req provider.Request) iter.Seq2[provider.Event, error] {
	return func(yield func(provider.Event, error) bool) {
		if !yield(provider.Event{Type: provider.EventTextDelta, Text: s.text}, nil) {
			return
		}
		yield(provider.Event{Type: provider.EventTurnEnd, FinishReason: provider.FinishStop, Usage: convo.Usage{PromptTokens: 5}}, nil)
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

func testTemplate(t *testing.T, text string) orchestrator.Template {
	return orchestrator.Template{
		Provider: &stubProvider{text: text},
		Model:    "test-model",
		Env:      testEnv(t),
	}
}

func TestTaskToolDelegatesAndReturnsFinalText(t *testing.T) {
	mgr := orchestrator.NewManager()
	tl := Tool(mgr, testTemplate(t, "the delegated answer"), func() []tool.Tool { return nil })

	out, err := tl.Execute(context.Background(), nil, map[string]any{
		"kind":   "researcher",
		"prompt": "look something up",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "the delegated answer" {
		t.Fatalf("expected the subagent's final text, got %q", out)
	}
}

func TestTaskToolRejectsUnknownKind(t *testing.T) {
	mgr := orchestrator.NewManager()
	tl := Tool(mgr, testTemplate(t, "x"), func() []tool.Tool { return nil })

	_, err := tl.Execute(context.Background(), nil, map[string]any{
		"kind":   "wizard",
		"prompt": "do magic",
	})
	if err == nil {
		t.Fatal("expected an error for an unrecognized kind")
	}
}

func TestTaskToolRequiresPrompt(t *testing.T) {
	mgr := orchestrator.NewManager()
	tl := Tool(mgr, testTemplate(t, "x"), func() []tool.Tool { return nil })

	_, err := tl.Execute(context.Background(), nil, map[string]any{"kind": "coder"})
	if err == nil {
		t.Fatal("expected an error for a missing prompt")
	}
}

func TestTaskToolFiltersToolsParameterBeforeSpawning(t *testing.T) {
	mgr := orchestrator.NewManager()
	parent := []tool.Tool{
		{Name: "fs_read"},
		{Name: "shell"},
		{Name: "fetch"},
	}
	tl := Tool(mgr, testTemplate(t, "done"), func() []tool.Tool { return parent })

	out, err := tl.Execute(context.Background(), nil, map[string]any{
		"kind":   "researcher",
		"prompt": "investigate",
		"tools":  []any{"fs_read"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Fatalf("expected the subagent's final text, got %q", out)
	}
}
