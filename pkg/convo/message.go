// Package convo defines the canonical, provider-independent conversation
// model shared by every provider adapter, the agent loop, the tool
// executor, and the session store.
package convo

import "fmt"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn in a conversation. Content is an ordered
// sequence of Parts; a message may mix Text and ToolUse parts (assistant)
// or Text and ToolResult parts (synthetic tool-answering user turns).
type Message struct {
	Role  Role
	Parts []Part
}

// Part is a tagged variant. Exactly one of the fields is set.
type Part struct {
	Text       *string
	ToolUse    *ToolUse
	ToolResult *ToolResult
	Thinking   *string
}

func TextPart(s string) Part            { return Part{Text: &s} }
func ThinkingPart(s string) Part        { return Part{Thinking: &s} }
func ToolUsePart(tu ToolUse) Part       { return Part{ToolUse: &tu} }
func ToolResultPart(tr ToolResult) Part { return Part{ToolResult: &tr} }

// ToolUse is an assistant's request to invoke a tool. ID is a locally
// unique handle scoped to the conversation.
type ToolUse struct {
	ID        string
	Name      string
	InputJSON string
}

// ContentBlock is a single unit of tool output: either text or an inline
// image.
type ContentBlock struct {
	Text string

	MimeType string
	Bytes    []byte
}

func TextBlock(s string) ContentBlock { return ContentBlock{Text: s} }

// ToolResult answers a prior ToolUse by ID. Name carries the tool name from
// the ToolUse it answers, for adapters (Gemini) that correlate function
// responses by name rather than id.
type ToolResult struct {
	ID      string
	Name    string
	Outcome []ContentBlock
	IsError bool
}

// Usage carries verbatim token counts as reported by the provider.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	CachedTokens     int64
}

// Validate checks the invariants from the data model: every ToolResult.ID
// answers exactly one earlier ToolUse.ID, and role alternation holds
// (optional leading system message, then strict user/assistant
// alternation).
func Validate(messages []Message) error {
	seenUse := map[string]bool{}
	seenResult := map[string]bool{}

	var lastNonSystem Role

	for i, m := range messages {
		if m.Role == RoleSystem && i != 0 {
			return fmt.Errorf("convo: system message must be first, found at index %d", i)
		}

		if m.Role != RoleSystem {
			if lastNonSystem != "" && lastNonSystem == m.Role {
				return fmt.Errorf("convo: role alternation violated at index %d (%s follows %s)", i, m.Role, lastNonSystem)
			}
			lastNonSystem = m.Role
		}

		for _, p := range m.Parts {
			if p.ToolUse != nil {
				if seenUse[p.ToolUse.ID] {
					return fmt.Errorf("convo: duplicate ToolUse id %q", p.ToolUse.ID)
				}
				seenUse[p.ToolUse.ID] = true
			}

			if p.ToolResult != nil {
				if seenResult[p.ToolResult.ID] {
					return fmt.Errorf("convo: duplicate ToolResult id %q", p.ToolResult.ID)
				}
				if !seenUse[p.ToolResult.ID] {
					return fmt.Errorf("convo: ToolResult id %q has no matching ToolUse", p.ToolResult.ID)
				}
				seenResult[p.ToolResult.ID] = true
			}
		}
	}

	return nil
}

// PendingToolUseIDs returns ToolUse ids in messages that have no matching
// ToolResult yet, in the order they were requested.
func PendingToolUseIDs(messages []Message) []string {
	var pending []string
	answered := map[string]bool{}

	for _, m := range messages {
		for _, p := range m.Parts {
			if p.ToolResult != nil {
				answered[p.ToolResult.ID] = true
			}
		}
	}

	for _, m := range messages {
		for _, p := range m.Parts {
			if p.ToolUse != nil && !answered[p.ToolUse.ID] {
				pending = append(pending, p.ToolUse.ID)
			}
		}
	}

	return pending
}
