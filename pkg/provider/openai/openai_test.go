package openai

import (
	"testing"

	"github.com/openai/openai-go/v3/responses"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

func TestBuildInputCollectsSystemMessagesAsInstructions(t *testing.T) {
	messages := []convo.Message{
		{Role: convo.RoleSystem, Parts: []convo.Part{convo.TextPart("be terse")}},
		{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart("hi")}},
	}

	items, instructions := buildInput(messages)

	if instructions != "be terse" {
		t.Fatalf("expected the system message to become instructions, got %q", instructions)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 non-system input item, got %d", len(items))
	}
}

func TestBuildInputJoinsMultipleSystemMessages(t *testing.T) {
	messages := []convo.Message{
		{Role: convo.RoleSystem, Parts: []convo.Part{convo.TextPart("first")}},
		{Role: convo.RoleSystem, Parts: []convo.Part{convo.TextPart("second")}},
	}

	_, instructions := buildInput(messages)

	if instructions != "first\n\nsecond" {
		t.Fatalf("expected joined instructions, got %q", instructions)
	}
}

func TestBuildInputTranslatesToolUseAndResult(t *testing.T) {
	messages := []convo.Message{
		{Role: convo.RoleAssistant, Parts: []convo.Part{
			convo.ToolUsePart(convo.ToolUse{ID: "c1", Name: "fs_read", InputJSON: `{"path":"a.txt"}`}),
		}},
		{Role: convo.RoleUser, Parts: []convo.Part{
			convo.ToolResultPart(convo.ToolResult{ID: "c1", Outcome: []convo.ContentBlock{convo.TextBlock("contents")}}),
		}},
	}

	items, _ := buildInput(messages)

	if len(items) != 2 {
		t.Fatalf("expected 2 input items, got %d", len(items))
	}
}

func TestBuildToolsHandlesEmptyInput(t *testing.T) {
	if out := buildTools(nil); out != nil {
		t.Fatalf("expected a nil slice for no tools, got %v", out)
	}
}

func TestBuildToolsDefaultsToEmptyObjectSchemaWhenParametersNil(t *testing.T) {
	out := buildTools([]tool.Tool{{Name: "noop"}})
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
}

func TestMapStatus(t *testing.T) {
	cases := map[responses.ResponseStatus]provider.FinishReason{
		responses.ResponseStatusIncomplete: provider.FinishMaxToken,
		responses.ResponseStatusFailed:     provider.FinishError,
		responses.ResponseStatusCompleted:  provider.FinishStop,
	}

	for status, want := range cases {
		if got := mapStatus(status); got != want {
			t.Errorf("mapStatus(%v) = %v, want %v", status, got, want)
		}
	}
}
