package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

func TestBuildMessagesSkipsSystemRole(t *testing.T) {
	messages := []convo.Message{
		{Role: convo.RoleSystem, Parts: []convo.Part{convo.TextPart("ignored")}},
		{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart("hello")}},
	}

	out := buildMessages(messages)

	if len(out) != 1 {
		t.Fatalf("expected the system message to be dropped, got %d messages", len(out))
	}
}

func TestBuildMessagesTranslatesToolUseAndResult(t *testing.T) {
	messages := []convo.Message{
		{Role: convo.RoleAssistant, Parts: []convo.Part{
			convo.ToolUsePart(convo.ToolUse{ID: "t1", Name: "fs_read", InputJSON: `{"path":"a.txt"}`}),
		}},
		{Role: convo.RoleUser, Parts: []convo.Part{
			convo.ToolResultPart(convo.ToolResult{ID: "t1", Outcome: []convo.ContentBlock{convo.TextBlock("contents")}}),
		}},
	}

	out := buildMessages(messages)

	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
}

func TestBuildMessagesDropsEmptyMessage(t *testing.T) {
	messages := []convo.Message{
		{Role: convo.RoleUser, Parts: nil},
		{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart("hi")}},
	}

	out := buildMessages(messages)

	if len(out) != 1 {
		t.Fatalf("expected the empty-parts message to be dropped, got %d messages", len(out))
	}
}

func TestBuildToolsExtractsSchema(t *testing.T) {
	tools := []tool.Tool{
		{
			Name:        "fs_read",
			Description: "read a file",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string"},
				},
				"required": []string{"path"},
			},
		},
	}

	out := buildTools(tools)

	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].OfTool.Name != "fs_read" {
		t.Fatalf("expected the tool name to round-trip, got %q", out[0].OfTool.Name)
	}
	if len(out[0].OfTool.InputSchema.Required) != 1 || out[0].OfTool.InputSchema.Required[0] != "path" {
		t.Fatalf("expected the required list to round-trip, got %v", out[0].OfTool.InputSchema.Required)
	}
}

func TestBuildToolsHandlesEmptyInput(t *testing.T) {
	if out := buildTools(nil); out != nil {
		t.Fatalf("expected a nil slice for no tools, got %v", out)
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[sdk.StopReason]provider.FinishReason{
		sdk.StopReasonToolUse:      provider.FinishToolUse,
		sdk.StopReasonMaxTokens:    provider.FinishMaxToken,
		sdk.StopReason("end_turn"): provider.FinishStop,
	}

	for reason, want := range cases {
		if got := mapStopReason(reason); got != want {
			t.Errorf("mapStopReason(%v) = %v, want %v", reason, got, want)
		}
	}
}
