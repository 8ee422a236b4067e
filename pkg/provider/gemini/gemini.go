// Package gemini adapts the google.golang.org/genai streaming client to
// provider.Provider, grounded on the Models.GenerateContent client
// construction used in this codebase's lineage, generalized to
// GenerateContentStream and function-call/function-response parts.
package gemini

import (
	"context"
	"encoding/json"
	"iter"
	"strconv"

	"google.golang.org/genai"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/errs"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

type Adapter struct {
	client *genai.Client
}

func New(ctx context.Context, apiKey string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &Adapter{client: client}, nil
}

func (a *Adapter) Send(ctx context.Context, req provider.Request) iter.Seq2[provider.Event, error] {
	return func(yield func(provider.Event, error) bool) {
		contents := buildContents(req.Messages)

		config := &genai.GenerateContentConfig{
			MaxOutputTokens: int32(req.Options.MaxTokens),
		}

		if req.SystemPrompt != "" {
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
		}

		if tools := buildTools(req.Tools); len(tools) > 0 {
			config.Tools = tools
		}

		stream := a.client.Models.GenerateContentStream(ctx, req.Options.Model, contents, config)

		var usage genai.GenerateContentResponseUsageMetadata
		callSeq := 0

		for chunk, err := range stream {
			if err != nil {
				yield(provider.Event{}, wrapErr(err))
				return
			}

			if chunk.UsageMetadata != nil {
				usage = *chunk.UsageMetadata
			}

			for _, cand := range chunk.Candidates {
				if cand.Content == nil {
					continue
				}

				for _, part := range cand.Content.Parts {
					switch {
					case part.Text != "":
						if !yield(provider.Event{Type: provider.EventTextDelta, Text: part.Text}, nil) {
							return
						}

					case part.FunctionCall != nil:
						callSeq++
						id := part.FunctionCall.ID
						if id == "" {
							id = syntheticCallID(part.FunctionCall.Name, callSeq)
						}

						argsJSON, _ := json.Marshal(part.FunctionCall.Args)

						if !yield(provider.Event{Type: provider.EventToolUseStart, ToolUseID: id, ToolName: part.FunctionCall.Name}, nil) {
							return
						}
						if !yield(provider.Event{Type: provider.EventToolUseArgsDelta, ToolUseID: id, ArgsDelta: string(argsJSON)}, nil) {
							return
						}
						if !yield(provider.Event{Type: provider.EventToolUseEnd, ToolUseID: id}, nil) {
							return
						}
					}
				}
			}
		}

		yield(provider.Event{
			Type:         provider.EventTurnEnd,
			FinishReason: provider.FinishStop,
			Usage: convo.Usage{
				PromptTokens:     int64(usage.PromptTokenCount),
				CompletionTokens: int64(usage.CandidatesTokenCount),
				CachedTokens:     int64(usage.CachedContentTokenCount),
			},
		}, nil)
	}
}

// syntheticCallID mints a stable id for providers (Gemini) that identify
// function calls by name rather than a per-call id, matching by-name
// correlation used to route the function response back to this call.
func syntheticCallID(name string, seq int) string {
	return name + "_" + itoa(seq)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func buildTools(tools []tool.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaFromParameters(t.Parameters),
		})
	}

	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaFromParameters(params map[string]any) *genai.Schema {
	if params == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	var schema genai.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	return &schema
}

func buildContents(messages []convo.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		if m.Role == convo.RoleSystem {
			continue
		}

		role := "user"
		if m.Role == convo.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part

		for _, p := range m.Parts {
			switch {
			case p.Text != nil:
				parts = append(parts, &genai.Part{Text: *p.Text})

			case p.ToolUse != nil:
				var args map[string]any
				if p.ToolUse.InputJSON != "" {
					json.Unmarshal([]byte(p.ToolUse.InputJSON), &args)
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   p.ToolUse.ID,
					Name: p.ToolUse.Name,
					Args: args,
				}})

			case p.ToolResult != nil:
				var text string
				for _, c := range p.ToolResult.Outcome {
					text += c.Text
				}
				name := p.ToolResult.Name
				if name == "" {
					// No name carried on the result; fall back to the id
					// so the response part is still well-formed.
					name = p.ToolResult.ID
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       p.ToolResult.ID,
					Name:     name,
					Response: map[string]any{"result": text},
				}})
			}
		}

		if len(parts) == 0 {
			continue
		}

		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	return out
}

func wrapErr(err error) error {
	var apiErr genai.APIError
	status := 0
	if e, ok := err.(genai.APIError); ok {
		apiErr = e
		status = apiErr.Code
	}

	kind, retriable := provider.ClassifyHTTPStatus(status)

	return errs.Transport("gemini request failed", err, kind, retriable)
}
