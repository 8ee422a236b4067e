// Package agent drives the turn loop shared by every provider: stream a
// response, dispatch any requested tools through the executor, feed
// results back, and repeat until the model stops asking for tools.
// Grounded on the teacher's pkg/agent.Agent.Send iterator shape,
// generalized from a single OpenAI Responses client to any
// provider.Provider and from ad hoc content slices to the canonical
// convo.Message model.
package agent

import (
	"context"
	"errors"
	"iter"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
	"github.com/kernelloop/assistant/pkg/tool/executor"
)

var errYieldStopped = errors.New("yield stopped")

// State names the phase of a single Send call, matching the run states an
// interactive host renders (spinner vs. tool-approval prompt vs. idle).
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateExecutingTools
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateExecutingTools:
		return "executing_tools"
	case StateCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// EventType tags the variant carried by an Event, the unit Send streams
// back to its caller.
type EventType int

const (
	EventTextDelta EventType = iota
	EventThinkingDelta
	EventToolCallStart
	EventToolCallEnd
	EventStateChange
	EventCompactionStart
	EventCompactionDone
	EventUsage
)

type Event struct {
	Type EventType

	Text string

	ToolCall   *convo.ToolUse
	ToolResult *convo.ToolResult

	State State

	Compaction *CompactionInfo

	Usage convo.Usage
}

// Config carries the provider-independent knobs an Agent is constructed
// with; the caller resolves the concrete provider.Provider before this.
type Config struct {
	Provider provider.Provider
	Model    string

	SystemPrompt string

	MaxTokens      int64
	ThinkingBudget int64

	MaxContextTokens int64
	ReserveTokens    int64
	KeepRecentTokens int64

	RetryPolicy provider.RetryPolicy

	Tools []tool.Tool
	Env   *tool.Environment

	// SummaryProvider/SummaryModel drive compaction, allowed to be a
	// cheaper model than the main conversation.
	SummaryProvider provider.Provider
	SummaryModel    string
}

type Agent struct {
	cfg Config

	messages []convo.Message

	lastInputTokens int64

	state State

	// interjections queues out-of-band user messages from Interject,
	// applied at the next turn boundary rather than mid-stream.
	interjections chan string
}

func New(cfg Config) *Agent {
	if cfg.RetryPolicy == (provider.RetryPolicy{}) {
		cfg.RetryPolicy = provider.DefaultRetryPolicy()
	}

	return &Agent{cfg: cfg, state: StateIdle, interjections: make(chan string, 8)}
}

// Interject queues message as an additional user turn, appended to the
// conversation the next time the running Send call reaches a turn
// boundary with no pending tool calls, and the loop continues rather than
// going idle. Returns false if the queue is full.
func (a *Agent) Interject(message string) bool {
	select {
	case a.interjections <- message:
		return true
	default:
		return false
	}
}

// drainInterjections appends every queued interjection as a user message
// and reports whether any were applied.
func (a *Agent) drainInterjections() bool {
	applied := false
	for {
		select {
		case msg := <-a.interjections:
			a.messages = append(a.messages, convo.Message{
				Role:  convo.RoleUser,
				Parts: []convo.Part{convo.TextPart(msg)},
			})
			applied = true
		default:
			return applied
		}
	}
}

func (a *Agent) State() State { return a.state }

// Messages returns the full conversation so far, for session persistence.
func (a *Agent) Messages() []convo.Message { return a.messages }

// Load replaces the conversation with messages restored from a session
// file, skipping the usual per-turn accumulation.
func (a *Agent) Load(messages []convo.Message) { a.messages = messages }

func (a *Agent) Clear() { a.messages = nil }

// Send appends a user turn and drives the agent loop until the model
// yields a final answer with no pending tool calls, streaming every delta
// and tool lifecycle event as it happens.
func (a *Agent) Send(ctx context.Context, input string) iter.Seq2[Event, error] {
	a.messages = append(a.messages, convo.Message{
		Role:  convo.RoleUser,
		Parts: []convo.Part{convo.TextPart(input)},
	})

	return func(yield func(Event, error) bool) {
		setState := func(s State) bool {
			a.state = s
			return yield(Event{Type: EventStateChange, State: s}, nil)
		}

		for {
			if !setState(StateAwaitingResponse) {
				return
			}

			assistantMsg, toolUses, usage, err := a.streamTurn(ctx, yield)
			if err != nil {
				if err == errYieldStopped {
					a.state = StateCancelled
					return
				}
				a.state = StateIdle
				yield(Event{}, err)
				return
			}

			a.messages = append(a.messages, assistantMsg)

			if usage.PromptTokens > 0 {
				a.lastInputTokens = usage.PromptTokens
				if !yield(Event{Type: EventUsage, Usage: usage}, nil) {
					a.answerPendingToolUses(toolUses)
					a.state = StateCancelled
					return
				}
			}

			if len(toolUses) == 0 {
				if a.drainInterjections() {
					continue
				}
				break
			}

			if !setState(StateExecutingTools) {
				a.answerPendingToolUses(toolUses)
				return
			}

			if err := a.runTools(ctx, yield, toolUses); err != nil {
				if err == errYieldStopped {
					a.state = StateCancelled
					return
				}
				a.state = StateIdle
				yield(Event{}, err)
				return
			}

			a.drainInterjections()
		}

		a.state = StateIdle

		if err := a.maybeCompact(ctx, yield); err != nil && err != errYieldStopped {
			yield(Event{}, err)
		}
	}
}

func (a *Agent) streamTurn(ctx context.Context, yield func(Event, error) bool) (convo.Message, []convo.ToolUse, convo.Usage, error) {
	req := provider.Request{
		Messages:     a.messages,
		SystemPrompt: a.cfg.SystemPrompt,
		Tools:        a.cfg.Tools,
		Options: provider.Options{
			Model:          a.cfg.Model,
			MaxTokens:      a.cfg.MaxTokens,
			ThinkingBudget: a.cfg.ThinkingBudget,
		},
	}

	var parts []convo.Part
	var textBuf, thinkingBuf string
	var toolUses []convo.ToolUse
	var argsByID = map[string]*string{}
	var partIdxByID = map[string]int{}
	var usage convo.Usage

	flushText := func() {
		if textBuf != "" {
			parts = append(parts, convo.TextPart(textBuf))
			textBuf = ""
		}
	}

	for ev, err := range a.cfg.RetryPolicy.Send(ctx, a.cfg.Provider, req) {
		if err != nil {
			return convo.Message{}, nil, convo.Usage{}, err
		}

		switch ev.Type {
		case provider.EventTextDelta:
			textBuf += ev.Text
			if !yield(Event{Type: EventTextDelta, Text: ev.Text}, nil) {
				return convo.Message{}, nil, convo.Usage{}, errYieldStopped
			}

		case provider.EventThinkingDelta:
			thinkingBuf += ev.Text
			if !yield(Event{Type: EventThinkingDelta, Text: ev.Text}, nil) {
				return convo.Message{}, nil, convo.Usage{}, errYieldStopped
			}

		case provider.EventToolUseStart:
			// Flushing text here and inserting the ToolUsePart in place
			// preserves the text/tool-use interleave a single assistant
			// message can carry, rather than grouping all tool uses after
			// all text regardless of when the model emitted them.
			flushText()
			tu := convo.ToolUse{ID: ev.ToolUseID, Name: ev.ToolName}
			toolUses = append(toolUses, tu)
			args := ""
			argsByID[ev.ToolUseID] = &args
			parts = append(parts, convo.ToolUsePart(tu))
			partIdxByID[ev.ToolUseID] = len(parts) - 1

		case provider.EventToolUseArgsDelta:
			if buf, ok := argsByID[ev.ToolUseID]; ok {
				*buf += ev.ArgsDelta
			}

		case provider.EventToolUseEnd:
			for i := range toolUses {
				if toolUses[i].ID == ev.ToolUseID {
					if buf, ok := argsByID[ev.ToolUseID]; ok {
						toolUses[i].InputJSON = *buf
					}
					if idx, ok := partIdxByID[ev.ToolUseID]; ok {
						parts[idx].ToolUse.InputJSON = toolUses[i].InputJSON
					}
					if !yield(Event{Type: EventToolCallStart, ToolCall: &toolUses[i]}, nil) {
						return convo.Message{}, nil, convo.Usage{}, errYieldStopped
					}
				}
			}

		case provider.EventTurnEnd:
			usage = ev.Usage

		case provider.EventError:
			return convo.Message{}, nil, convo.Usage{}, ev.Err
		}
	}

	flushText()

	if thinkingBuf != "" {
		parts = append([]convo.Part{convo.ThinkingPart(thinkingBuf)}, parts...)
	}

	return convo.Message{Role: convo.RoleAssistant, Parts: parts}, toolUses, usage, nil
}

func (a *Agent) runTools(ctx context.Context, yield func(Event, error) bool, uses []convo.ToolUse) error {
	registry := &sliceRegistry{tools: a.cfg.Tools}
	exec := executor.New(registry, a.cfg.Env)

	results, err := exec.Run(ctx, uses)
	if err != nil {
		a.answerPendingToolUses(uses)
		return err
	}

	parts := make([]convo.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, convo.ToolResultPart(r))
	}

	// Every ToolUse in this batch is answered here, before any yield in
	// the loop below can stop the iteration. A consumer that walks away
	// mid-loop (errYieldStopped) still leaves a.Messages with no dangling
	// ToolUse — only the EventToolCallEnd notifications get cut short.
	a.messages = append(a.messages, convo.Message{Role: convo.RoleUser, Parts: parts})

	for _, r := range results {
		r := r
		if !yield(Event{Type: EventToolCallEnd, ToolResult: &r}, nil) {
			return errYieldStopped
		}
	}

	return nil
}

// answerPendingToolUses appends a synthetic cancelled ToolResult for every
// use in uses, preserving the ToolUse<->ToolResult invariant when Send
// exits before the tools it just requested ever ran (or ran but their
// results were never appended).
func (a *Agent) answerPendingToolUses(uses []convo.ToolUse) {
	if len(uses) == 0 {
		return
	}

	parts := make([]convo.Part, 0, len(uses))
	for _, u := range uses {
		parts = append(parts, convo.ToolResultPart(convo.ToolResult{
			ID:      u.ID,
			Name:    u.Name,
			Outcome: []convo.ContentBlock{convo.TextBlock("cancelled")},
			IsError: true,
		}))
	}

	a.messages = append(a.messages, convo.Message{Role: convo.RoleUser, Parts: parts})
}

// sliceRegistry adapts a flat []tool.Tool slice to executor.Registry
// without requiring the full tool.Registry's dynamic-provider machinery.
type sliceRegistry struct {
	tools []tool.Tool
}

func (r *sliceRegistry) Lookup(name string) (tool.Tool, bool) {
	for _, t := range r.tools {
		if t.Name == name {
			return t, true
		}
	}
	return tool.Tool{}, false
}

