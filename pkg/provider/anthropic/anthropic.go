// Package anthropic adapts the Anthropic Messages streaming API to
// provider.Provider, grounded on the ContentBlockStartEvent /
// ContentBlockDeltaEvent / ContentBlockStopEvent accumulation pattern used
// for the native Anthropic runtime in this codebase's lineage.
package anthropic

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/errs"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

type Adapter struct {
	client anthropic.Client
}

func New(apiKey string, opts ...option.RequestOption) *Adapter {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Adapter{client: anthropic.NewClient(reqOpts...)}
}

func (a *Adapter) Send(ctx context.Context, req provider.Request) iter.Seq2[provider.Event, error] {
	return func(yield func(provider.Event, error) bool) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(req.Options.Model),
			MaxTokens: req.Options.MaxTokens,
			Messages:  buildMessages(req.Messages),
			Tools:     buildTools(req.Tools),
		}

		if req.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
		}

		if req.Options.ThinkingBudget >= 1024 && req.Options.ThinkingBudget < req.Options.MaxTokens {
			params.Thinking = anthropic.ThinkingConfigParamOfEnabled(req.Options.ThinkingBudget)
		}

		stream := a.client.Messages.NewStreaming(ctx, params)
		msg := anthropic.Message{}

		type partial struct {
			id   string
			name string
		}
		partials := map[int64]*partial{}

		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				yield(provider.Event{}, wrapErr(err))
				return
			}

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if variant.ContentBlock.Type != "tool_use" {
					continue
				}
				pc := &partial{id: variant.ContentBlock.ID, name: variant.ContentBlock.Name}
				partials[variant.Index] = pc
				if !yield(provider.Event{Type: provider.EventToolUseStart, ToolUseID: pc.id, ToolName: pc.name}, nil) {
					return
				}

			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text == "" {
						continue
					}
					if !yield(provider.Event{Type: provider.EventTextDelta, Text: delta.Text}, nil) {
						return
					}
				case anthropic.ThinkingDelta:
					if delta.Thinking == "" {
						continue
					}
					if !yield(provider.Event{Type: provider.EventThinkingDelta, Text: delta.Thinking}, nil) {
						return
					}
				case anthropic.InputJSONDelta:
					pc := partials[variant.Index]
					if pc == nil || delta.PartialJSON == "" {
						continue
					}
					if !yield(provider.Event{Type: provider.EventToolUseArgsDelta, ToolUseID: pc.id, ArgsDelta: delta.PartialJSON}, nil) {
						return
					}
				}

			case anthropic.ContentBlockStopEvent:
				pc := partials[variant.Index]
				if pc == nil {
					continue
				}
				if !yield(provider.Event{Type: provider.EventToolUseEnd, ToolUseID: pc.id}, nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield(provider.Event{}, wrapErr(err))
			return
		}

		yield(provider.Event{
			Type:         provider.EventTurnEnd,
			FinishReason: mapStopReason(msg.StopReason),
			Usage: convo.Usage{
				PromptTokens:     msg.Usage.InputTokens,
				CompletionTokens: msg.Usage.OutputTokens,
				CachedTokens:     msg.Usage.CacheReadInputTokens,
			},
		}, nil)
	}
}

func mapStopReason(reason anthropic.StopReason) provider.FinishReason {
	switch reason {
	case anthropic.StopReasonToolUse:
		return provider.FinishToolUse
	case anthropic.StopReasonMaxTokens:
		return provider.FinishMaxToken
	default:
		return provider.FinishStop
	}
}

func buildTools(tools []tool.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, t := range tools {
		var required []string
		var properties any
		if t.Parameters != nil {
			if r, ok := t.Parameters["required"].([]string); ok {
				required = r
			}
			properties = t.Parameters["properties"]
		}

		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       "object",
					Properties: properties,
					Required:   required,
				},
			},
		})
	}

	return out
}

// wrapErr classifies a transport-level failure so the retry policy can
// decide whether to re-issue the request.
func wrapErr(err error) error {
	status := 0
	if apiErr, ok := err.(*anthropic.Error); ok {
		status = apiErr.StatusCode
	}

	kind, retriable := provider.ClassifyHTTPStatus(status)

	return errs.Transport("anthropic request failed", err, kind, retriable)
}

func buildMessages(messages []convo.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, m := range messages {
		if m.Role == convo.RoleSystem {
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion

		for _, p := range m.Parts {
			switch {
			case p.Text != nil:
				blocks = append(blocks, anthropic.NewTextBlock(*p.Text))
			case p.ToolUse != nil:
				var input map[string]any
				if p.ToolUse.InputJSON != "" {
					json.Unmarshal([]byte(p.ToolUse.InputJSON), &input)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(p.ToolUse.ID, input, p.ToolUse.Name))
			case p.ToolResult != nil:
				var sb strings.Builder
				for _, c := range p.ToolResult.Outcome {
					sb.WriteString(c.Text)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(p.ToolResult.ID, sb.String(), p.ToolResult.IsError))
			}
		}

		if len(blocks) == 0 {
			continue
		}

		if m.Role == convo.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}

	return out
}
