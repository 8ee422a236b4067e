package gemini

import (
	"testing"

	"google.golang.org/genai"

	"github.com/kernelloop/assistant/pkg/convo"
)

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 7: "7", 42: "42", 12345: "12345"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Errorf("itoa(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestSyntheticCallID(t *testing.T) {
	if got := syntheticCallID("lookup", 3); got != "lookup_3" {
		t.Errorf("expected a name+sequence id, got %q", got)
	}
}

func TestBuildContentsMapsAssistantRoleToModel(t *testing.T) {
	messages := []convo.Message{
		{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart("hi")}},
		{Role: convo.RoleAssistant, Parts: []convo.Part{convo.TextPart("hello")}},
	}

	out := buildContents(messages)

	if len(out) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(out))
	}
	if out[0].Role != "user" {
		t.Errorf("expected user role to pass through unchanged, got %q", out[0].Role)
	}
	if out[1].Role != "model" {
		t.Errorf("expected assistant role to map to model, got %q", out[1].Role)
	}
}

func TestBuildContentsSkipsSystemAndEmptyMessages(t *testing.T) {
	messages := []convo.Message{
		{Role: convo.RoleSystem, Parts: []convo.Part{convo.TextPart("ignored")}},
		{Role: convo.RoleUser, Parts: nil},
		{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart("hi")}},
	}

	out := buildContents(messages)

	if len(out) != 1 {
		t.Fatalf("expected only the non-empty user message to survive, got %d", len(out))
	}
}

func TestBuildContentsTranslatesToolUseAndResult(t *testing.T) {
	messages := []convo.Message{
		{Role: convo.RoleAssistant, Parts: []convo.Part{
			convo.ToolUsePart(convo.ToolUse{ID: "c1", Name: "fs_read", InputJSON: `{"path":"a.txt"}`}),
		}},
		{Role: convo.RoleUser, Parts: []convo.Part{
			convo.ToolResultPart(convo.ToolResult{ID: "c1", Outcome: []convo.ContentBlock{convo.TextBlock("contents")}}),
		}},
	}

	out := buildContents(messages)

	if len(out) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(out))
	}
	if out[0].Parts[0].FunctionCall == nil || out[0].Parts[0].FunctionCall.Name != "fs_read" {
		t.Fatalf("expected a function call part, got %+v", out[0].Parts[0])
	}
	if out[1].Parts[0].FunctionResponse == nil {
		t.Fatalf("expected a function response part, got %+v", out[1].Parts[0])
	}
}

func TestSchemaFromParametersDefaultsToObjectOnNil(t *testing.T) {
	schema := schemaFromParameters(nil)
	if schema.Type != genai.TypeObject {
		t.Fatalf("expected the default schema type to be object, got %v", schema.Type)
	}
}

func TestSchemaFromParametersTranslatesJSONSchema(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
	}

	schema := schemaFromParameters(params)

	if schema.Type != genai.TypeObject {
		t.Fatalf("expected object type, got %v", schema.Type)
	}
	if _, ok := schema.Properties["path"]; !ok {
		t.Fatalf("expected the path property to survive translation, got %v", schema.Properties)
	}
}
