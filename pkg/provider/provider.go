// Package provider defines the wire-protocol-independent contract every
// adapter (Anthropic, Gemini, OpenAI/OpenRouter) implements, grounded on
// the streaming-iterator shape of the teacher's pkg/agent.Agent.Send: a
// provider consumes canonical messages and yields a uniform event stream.
package provider

import (
	"context"
	"iter"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/tool"
)

// EventType tags the variant carried by an Event.
type EventType int

const (
	EventTextDelta EventType = iota
	EventThinkingDelta
	EventToolUseStart
	EventToolUseArgsDelta
	EventToolUseEnd
	EventTurnEnd
	EventError
)

type FinishReason string

const (
	FinishStop     FinishReason = "stop"
	FinishMaxToken FinishReason = "max_tokens"
	FinishToolUse  FinishReason = "tool_use"
	FinishSafety   FinishReason = "safety"
	FinishError    FinishReason = "error"
)

// Event is the tagged variant streamed back from Send. Exactly the fields
// relevant to Type are populated.
type Event struct {
	Type EventType

	Text string // TextDelta / ThinkingDelta

	ToolUseID   string // ToolUseStart / ToolUseArgsDelta / ToolUseEnd
	ToolName    string // ToolUseStart
	ArgsDelta   string // ToolUseArgsDelta

	FinishReason FinishReason  // TurnEnd
	Usage        convo.Usage   // TurnEnd

	ErrKind     string // Error
	Retriable   bool   // Error
	Err         error  // Error
}

// CachePoint hints the adapter to mark a prefix boundary for provider-side
// caching. It is advisory: adapters are permitted to ignore it.
type CachePoint struct {
	// MessageIndex is the index into Request.Messages after which the
	// cache boundary falls.
	MessageIndex int
}

type Options struct {
	Model             string
	MaxTokens         int64
	ThinkingBudget    int64
	CachePoints       []CachePoint
}

type Request struct {
	Messages     []convo.Message
	SystemPrompt string
	Tools        []tool.Tool
	Options      Options
}

// Provider is the single operation every adapter exposes.
type Provider interface {
	Send(ctx context.Context, req Request) iter.Seq2[Event, error]
}
