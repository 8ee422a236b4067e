// Package executor runs a batch of tool calls requested in a single
// assistant turn, grounded on the teacher's concurrent tool dispatch in
// pkg/agent (bounded errgroup fan-out for read-only tools, serialized
// execution otherwise) and generalized to preserve request order in the
// returned results regardless of completion order.
package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/errs"
	"github.com/kernelloop/assistant/pkg/tool"
)

// MaxReadOnlyConcurrency bounds how many read-only tool calls run at once
// within a single batch.
const MaxReadOnlyConcurrency = 4

// Registry resolves a tool by name.
type Registry interface {
	Lookup(name string) (tool.Tool, bool)
}

// Executor dispatches ToolUse requests against a Registry.
type Executor struct {
	Registry Registry
	Env      *tool.Environment
}

func New(registry Registry, env *tool.Environment) *Executor {
	return &Executor{Registry: registry, Env: env}
}

// Run executes every ToolUse in uses, returning one ToolResult per input
// in the same order. The leading run of ReadOnly tool calls executes
// concurrently up to MaxReadOnlyConcurrency; from the first call not marked
// ReadOnly onward, every call runs one at a time in request order, so each
// one observes the side effects of the calls requested before it.
func (e *Executor) Run(ctx context.Context, uses []convo.ToolUse) ([]convo.ToolResult, error) {
	results := make([]convo.ToolResult, len(uses))

	var readOnlyIdx, serialIdx []int
	for i, u := range uses {
		t, ok := e.Registry.Lookup(u.Name)
		if ok && t.Capabilities.ReadOnly && len(serialIdx) == 0 {
			readOnlyIdx = append(readOnlyIdx, i)
		} else {
			serialIdx = append(serialIdx, i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxReadOnlyConcurrency)

	for _, i := range readOnlyIdx {
		i := i
		g.Go(func() error {
			results[i] = e.runOne(gctx, uses[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, i := range serialIdx {
		if ctx.Err() != nil {
			results[i] = errorResult(uses[i].ID, uses[i].Name, errs.Cancelled("tool execution cancelled"))
			continue
		}
		results[i] = e.runOne(ctx, uses[i])
	}

	return results, nil
}

func (e *Executor) runOne(ctx context.Context, u convo.ToolUse) convo.ToolResult {
	t, ok := e.Registry.Lookup(u.Name)
	if !ok {
		return errorResult(u.ID, u.Name, errs.ToolInput(fmt.Sprintf("unknown tool %q", u.Name), nil))
	}

	var args map[string]any
	if u.InputJSON != "" {
		if err := json.Unmarshal([]byte(u.InputJSON), &args); err != nil {
			return errorResult(u.ID, u.Name, errs.ToolInput(fmt.Sprintf("invalid arguments for %q", u.Name), err))
		}
	}

	out, err := t.Execute(ctx, e.Env, args)
	if err != nil {
		return errorResult(u.ID, u.Name, err)
	}

	return convo.ToolResult{
		ID:      u.ID,
		Name:    u.Name,
		Outcome: []convo.ContentBlock{convo.TextBlock(out)},
	}
}

func errorResult(id, name string, err error) convo.ToolResult {
	return convo.ToolResult{
		ID:      id,
		Name:    name,
		Outcome: []convo.ContentBlock{convo.TextBlock(err.Error())},
		IsError: true,
	}
}
