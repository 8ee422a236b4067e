// Package task exposes multi-agent delegation as a tool: the task tool
// spawns an orchestrator.Node scoped to a named role, runs it to
// completion, and returns its final text.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/kernelloop/assistant/pkg/orchestrator"
	"github.com/kernelloop/assistant/pkg/prompt"
	"github.com/kernelloop/assistant/pkg/tool"
)

const defaultTimeout = 5 * time.Minute

// ToolsProvider returns the caller's current full tool set. It is called
// lazily at task-execution time rather than passed as a fixed slice,
// because the task tool's own registration needs to be part of the set it
// hands to an orchestrator-kind child (so that child can delegate further),
// which is only true once the caller has finished assembling its tool list.
type ToolsProvider func() []tool.Tool

func Tools(mgr *orchestrator.Manager, tmpl orchestrator.Template, parentTools ToolsProvider) []tool.Tool {
	return []tool.Tool{Tool(mgr, tmpl, parentTools)}
}

func Tool(mgr *orchestrator.Manager, tmpl orchestrator.Template, parentTools ToolsProvider) tool.Tool {
	return tool.Tool{
		Name: "task",

		Description: "Delegate a self-contained piece of work to a subagent. Use `researcher` for read-only investigation, `troubleshooter` for diagnosing a failure, `coder` for a scoped implementation change, `orchestrator` for coordinating further sub-delegation. Blocks until the subagent finishes and returns its final answer.",

		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"kind": map[string]any{
					"type":        "string",
					"description": "The subagent role to run",
					"enum":        []string{"coder", "researcher", "troubleshooter", "orchestrator"},
				},
				"prompt": map[string]any{
					"type":        "string",
					"description": "The task for the subagent to complete, written as a complete, self-contained instruction",
				},
				"timeout_seconds": map[string]any{
					"type":        "integer",
					"description": "Optional wall-clock budget for the subagent, defaults to 300s",
				},
				"tools": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Optional further restriction on the subagent's tool names, intersected with the kind's own allowlist. Omit to use the kind's default set.",
				},
			},
			"required": []string{"kind", "prompt"},
		},

		Capabilities: tool.Capabilities{LongRunning: true},

		Execute: func(ctx context.Context, env *tool.Environment, args map[string]any) (string, error) {
			return execute(ctx, mgr, tmpl, parentTools, args)
		},
	}
}

func execute(ctx context.Context, mgr *orchestrator.Manager, tmpl orchestrator.Template, parentTools ToolsProvider, args map[string]any) (string, error) {
	kindArg, _ := args["kind"].(string)
	kind := prompt.Kind(kindArg)
	switch kind {
	case prompt.Coder, prompt.Researcher, prompt.Troubleshooter, prompt.Orchestrator:
	default:
		return "", fmt.Errorf("unknown task kind %q", kindArg)
	}

	objective, ok := args["prompt"].(string)
	if !ok || objective == "" {
		return "", fmt.Errorf("prompt is required")
	}

	timeout := defaultTimeout
	if v, ok := args["timeout_seconds"].(float64); ok && v > 0 {
		timeout = time.Duration(v) * time.Second
	}

	available := parentTools()
	if raw, ok := args["tools"].([]any); ok && len(raw) > 0 {
		allowed := make(map[string]bool, len(raw))
		for _, v := range raw {
			if name, ok := v.(string); ok {
				allowed[name] = true
			}
		}
		filtered := available[:0:0]
		for _, t := range available {
			if allowed[t.Name] {
				filtered = append(filtered, t)
			}
		}
		available = filtered
	}

	node, err := mgr.Spawn(ctx, tmpl, kind, objective, available, timeout)
	if err != nil {
		return "", fmt.Errorf("failed to spawn task: %w", err)
	}

	mgr.Wait(ctx, []string{node.ID})

	text, errMsg := node.Result()
	if errMsg != "" {
		return "", fmt.Errorf("task failed (%s): %s", node.Status(), errMsg)
	}
	if text == "" {
		return "", fmt.Errorf("task completed with no output")
	}

	return text, nil
}
