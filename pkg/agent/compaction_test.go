package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/provider"
)

func toolResultMessage(id, text string) convo.Message {
	return convo.Message{
		Role:  convo.RoleUser,
		Parts: []convo.Part{convo.ToolResultPart(convo.ToolResult{ID: id, Outcome: []convo.ContentBlock{convo.TextBlock(text)}})},
	}
}

func TestCompactSummarizesLargestToolResultsNotUserMessages(t *testing.T) {
	big := strings.Repeat("x", 20000)

	a := New(Config{
		Provider:         &scriptedProvider{},
		Model:            "test-model",
		MaxContextTokens: 1000,
		ReserveTokens:    100,
		KeepRecentTokens: 1,
	})

	a.Load([]convo.Message{
		{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart("please read this file")}},
		{Role: convo.RoleAssistant, Parts: []convo.Part{convo.ToolUsePart(convo.ToolUse{ID: "call1", Name: "read"})}},
		toolResultMessage("call1", big),
		{Role: convo.RoleAssistant, Parts: []convo.Part{convo.TextPart("here is a summary of the file")}},
		{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart("thanks, one more question")}},
	})

	summaryProvider := &scriptedProvider{turns: [][]provider.Event{textTurn("the file defines a widget")}}
	a.cfg.SummaryProvider = summaryProvider
	a.cfg.RetryPolicy = provider.DefaultRetryPolicy()

	info, err := a.compact(context.Background(), 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil {
		t.Fatal("expected compaction to run")
	}

	msgs := a.Messages()

	if msgs[0].Parts[0].Text == nil || *msgs[0].Parts[0].Text != "please read this file" {
		t.Fatalf("expected first user message to survive unchanged, got %+v", msgs[0])
	}
	if msgs[4].Parts[0].Text == nil || *msgs[4].Parts[0].Text != "thanks, one more question" {
		t.Fatalf("expected trailing user message to survive unchanged, got %+v", msgs[4])
	}

	tr := msgs[2].Parts[0].ToolResult
	if tr == nil || len(tr.Outcome) != 1 {
		t.Fatalf("expected the tool result to hold a single summarized block, got %+v", tr)
	}
	if !strings.HasPrefix(tr.Outcome[0].Text, "[SUMMARIZED call1]") {
		t.Fatalf("expected [SUMMARIZED prefix, got %q", tr.Outcome[0].Text)
	}
	if strings.Contains(tr.Outcome[0].Text, "xxxx") {
		t.Fatalf("expected the oversized payload to be gone from the summarized result")
	}
}

func TestCompactSkipsAlreadySummarizedResults(t *testing.T) {
	a := New(Config{
		Provider:         &scriptedProvider{},
		Model:            "test-model",
		MaxContextTokens: 1000,
		ReserveTokens:    900,
		KeepRecentTokens: 1,
	})

	a.Load([]convo.Message{
		{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart("go")}},
		{Role: convo.RoleAssistant, Parts: []convo.Part{convo.ToolUsePart(convo.ToolUse{ID: "call1", Name: "read"})}},
		toolResultMessage("call1", "[SUMMARIZED call1] already condensed"),
		{Role: convo.RoleAssistant, Parts: []convo.Part{convo.TextPart("okay")}},
	})

	info, err := a.compact(context.Background(), 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info != nil {
		t.Fatalf("expected no-op compaction once the only candidate is already summarized, got %+v", info)
	}
}
