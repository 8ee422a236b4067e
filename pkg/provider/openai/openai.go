// Package openai adapts the OpenAI (and OpenRouter/OpenAI-compatible)
// Responses API streaming events to provider.Provider, grounded on the
// response.output_item.added / response.function_call_arguments.delta /
// response.completed event sequence used for the native OpenAI runtime in
// this codebase's lineage.
package openai

import (
	"context"
	"iter"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/errs"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

type Adapter struct {
	client openai.Client
}

func New(apiKey string, opts ...option.RequestOption) *Adapter {
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Adapter{client: openai.NewClient(reqOpts...)}
}

// NewOpenRouter builds an adapter pointed at an OpenAI-compatible gateway,
// attaching the attribution headers OpenRouter expects.
func NewOpenRouter(apiKey, referer, title string) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL("https://openrouter.ai/api/v1"),
	}
	if referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", referer))
	}
	if title != "" {
		opts = append(opts, option.WithHeader("X-Title", title))
	}
	return &Adapter{client: openai.NewClient(opts...)}
}

func (a *Adapter) Send(ctx context.Context, req provider.Request) iter.Seq2[provider.Event, error] {
	return func(yield func(provider.Event, error) bool) {
		items, instructions := buildInput(req.Messages)

		params := responses.ResponseNewParams{
			Model:             shared.ResponsesModel(req.Options.Model),
			MaxOutputTokens:   openai.Int(req.Options.MaxTokens),
			Input:             responses.ResponseNewParamsInputUnion{OfInputItemList: items},
			ParallelToolCalls: openai.Bool(false),
		}

		if instructions != "" {
			params.Instructions = openai.String(instructions)
		} else if req.SystemPrompt != "" {
			params.Instructions = openai.String(req.SystemPrompt)
		}

		if tools := buildTools(req.Tools); len(tools) > 0 {
			params.Tools = tools
		}

		stream := a.client.Responses.NewStreaming(ctx, params)

		type partial struct {
			id      string
			name    string
			started bool
			args    strings.Builder
		}
		partials := map[string]*partial{}

		getPartial := func(itemID string) *partial {
			if pc, ok := partials[itemID]; ok {
				return pc
			}
			pc := &partial{id: itemID}
			partials[itemID] = pc
			return pc
		}

		var completed responses.Response
		gotCompleted := false

		for stream.Next() {
			event := stream.Current()

			switch event.Type {
			case "response.output_text.delta":
				if delta := event.Delta.OfString; delta != "" {
					if !yield(provider.Event{Type: provider.EventTextDelta, Text: delta}, nil) {
						return
					}
				}

			case "response.output_item.added":
				item := event.Item
				if item.Type != "function_call" {
					continue
				}
				pc := getPartial(item.ID)
				if callID := item.CallID; callID != "" {
					pc.id = callID
				}
				pc.name = item.Name
				pc.started = true
				if !yield(provider.Event{Type: provider.EventToolUseStart, ToolUseID: pc.id, ToolName: pc.name}, nil) {
					return
				}

			case "response.function_call_arguments.delta":
				pc := getPartial(event.ItemID)
				if delta := event.Delta.OfString; delta != "" {
					pc.args.WriteString(delta)
					if !yield(provider.Event{Type: provider.EventToolUseArgsDelta, ToolUseID: pc.id, ArgsDelta: delta}, nil) {
						return
					}
				}

			case "response.output_item.done":
				item := event.Item
				if item.Type != "function_call" {
					continue
				}
				pc := getPartial(item.ID)
				if !yield(provider.Event{Type: provider.EventToolUseEnd, ToolUseID: pc.id}, nil) {
					return
				}

			case "response.completed":
				completed = event.Response
				gotCompleted = true
			}
		}

		if err := stream.Err(); err != nil {
			yield(provider.Event{}, wrapErr(err))
			return
		}

		if !gotCompleted {
			yield(provider.Event{}, errs.ProviderRejected("openai stream ended without response.completed", nil))
			return
		}

		yield(provider.Event{
			Type:         provider.EventTurnEnd,
			FinishReason: mapStatus(completed.Status),
			Usage: convo.Usage{
				PromptTokens:     completed.Usage.InputTokens,
				CompletionTokens: completed.Usage.OutputTokens,
				CachedTokens:     completed.Usage.InputTokensDetails.CachedTokens,
			},
		}, nil)
	}
}

func mapStatus(status responses.ResponseStatus) provider.FinishReason {
	switch status {
	case responses.ResponseStatusIncomplete:
		return provider.FinishMaxToken
	case responses.ResponseStatusFailed:
		return provider.FinishError
	default:
		return provider.FinishStop
	}
}

func buildTools(tools []tool.Tool) []responses.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, responses.ToolParamOfFunction(t.Name, schema, false))
	}
	return out
}

func buildInput(messages []convo.Message) (responses.ResponseInputParam, string) {
	items := make(responses.ResponseInputParam, 0, len(messages))
	var instructions strings.Builder

	for _, m := range messages {
		if m.Role == convo.RoleSystem {
			for _, p := range m.Parts {
				if p.Text != nil {
					if instructions.Len() > 0 {
						instructions.WriteString("\n\n")
					}
					instructions.WriteString(*p.Text)
				}
			}
			continue
		}

		for _, p := range m.Parts {
			switch {
			case p.Text != nil:
				role := responses.EasyInputMessageRoleUser
				if m.Role == convo.RoleAssistant {
					role = responses.EasyInputMessageRoleAssistant
				}
				items = append(items, responses.ResponseInputItemParamOfMessage(*p.Text, role))

			case p.ToolUse != nil:
				args := p.ToolUse.InputJSON
				if args == "" {
					args = "{}"
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(args, p.ToolUse.ID, p.ToolUse.Name))

			case p.ToolResult != nil:
				var sb strings.Builder
				for _, c := range p.ToolResult.Outcome {
					sb.WriteString(c.Text)
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(p.ToolResult.ID, sb.String()))
			}
		}
	}

	return items, instructions.String()
}

func wrapErr(err error) error {
	status := 0
	if apiErr, ok := err.(*openai.Error); ok {
		status = apiErr.StatusCode
	}

	kind, retriable := provider.ClassifyHTTPStatus(status)

	return errs.Transport("openai request failed", err, kind, retriable)
}
