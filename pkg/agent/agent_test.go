package agent

import (
	"context"
	"encoding/json"
	"iter"
	"testing"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

// scriptedProvider replays a fixed sequence of turns, one []provider.Event
// per call to Send, so a test can drive the agent loop through a known
// number of round trips without a real network call.
type scriptedProvider struct {
	turns [][]provider.Event
	calls int
}

func (p *scriptedProvider) Send(ctx context.Context, req provider.Request) iter.Seq2[provider.Event, error] {
	return func(yield func(provider.Event, error) bool) {
		if p.calls >= len(p.turns) {
			yield(provider.Event{}, context.Canceled)
			return
		}
		turn := p.turns[p.calls]
		p.calls++
		for _, ev := range turn {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func textTurn(s string) []provider.Event {
	return []provider.Event{
		{Type: provider.EventTextDelta, Text: s},
		{Type: provider.EventTurnEnd, Usage: convo.Usage{PromptTokens: 10, CompletionTokens: 5}},
	}
}

func toolCallTurn(id, name string, args map[string]any) []provider.Event {
	argsJSON, _ := json.Marshal(args)
	return []provider.Event{
		{Type: provider.EventToolUseStart, ToolUseID: id, ToolName: name},
		{Type: provider.EventToolUseArgsDelta, ToolUseID: id, ArgsDelta: string(argsJSON)},
		{Type: provider.EventToolUseEnd, ToolUseID: id},
		{Type: provider.EventTurnEnd, Usage: convo.Usage{PromptTokens: 10, CompletionTokens: 5}},
	}
}

func TestSendStreamsTextAndReachesIdle(t *testing.T) {
	p := &scriptedProvider{turns: [][]provider.Event{textTurn("hello there")}}

	a := New(Config{Provider: p, Model: "test-model"})

	var text string
	for ev, err := range a.Send(context.Background(), "hi") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type == EventTextDelta {
			text += ev.Text
		}
	}

	if text != "hello there" {
		t.Fatalf("expected accumulated text %q, got %q", "hello there", text)
	}
	if a.State() != StateIdle {
		t.Fatalf("expected idle state after completion, got %v", a.State())
	}
	if len(a.Messages()) != 2 {
		t.Fatalf("expected 2 messages (user + assistant), got %d", len(a.Messages()))
	}
}

func TestSendDispatchesToolCallAndFeedsResultBack(t *testing.T) {
	echoTool := tool.Tool{
		Name: "echo",
		Execute: func(ctx context.Context, env *tool.Environment, args map[string]any) (string, error) {
			return args["msg"].(string), nil
		},
	}

	p := &scriptedProvider{turns: [][]provider.Event{
		toolCallTurn("t1", "echo", map[string]any{"msg": "pong"}),
		textTurn("done"),
	}}

	a := New(Config{Provider: p, Model: "test-model", Tools: []tool.Tool{echoTool}})

	var sawToolStart, sawToolEnd bool
	for ev, err := range a.Send(context.Background(), "ping") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		switch ev.Type {
		case EventToolCallStart:
			sawToolStart = true
		case EventToolCallEnd:
			sawToolEnd = true
			if ev.ToolResult.Outcome[0].Text != "pong" {
				t.Errorf("expected tool result %q, got %q", "pong", ev.ToolResult.Outcome[0].Text)
			}
		}
	}

	if !sawToolStart || !sawToolEnd {
		t.Fatalf("expected both tool lifecycle events, start=%v end=%v", sawToolStart, sawToolEnd)
	}
	if p.calls != 2 {
		t.Fatalf("expected the loop to make a second provider call after the tool result, got %d calls", p.calls)
	}
}

func TestSendSurfacesProviderError(t *testing.T) {
	p := &scriptedProvider{turns: [][]provider.Event{
		{{Type: provider.EventError, Err: context.DeadlineExceeded}},
	}}

	a := New(Config{Provider: p, Model: "test-model"})

	var gotErr error
	for _, err := range a.Send(context.Background(), "hi") {
		if err != nil {
			gotErr = err
		}
	}

	if gotErr == nil {
		t.Fatal("expected the provider error to surface")
	}
}

func TestLoadReplacesConversation(t *testing.T) {
	a := New(Config{})
	seeded := []convo.Message{{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart("earlier")}}}

	a.Load(seeded)

	if len(a.Messages()) != 1 {
		t.Fatalf("expected loaded conversation to have 1 message, got %d", len(a.Messages()))
	}

	a.Clear()
	if len(a.Messages()) != 0 {
		t.Fatalf("expected Clear to empty the conversation, got %d messages", len(a.Messages()))
	}
}
