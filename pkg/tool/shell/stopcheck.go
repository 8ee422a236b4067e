package shell

import (
	"context"
	"strings"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/provider"
)

// ProviderStopChecker asks a cheap model whether accumulated command output
// looks like it has run long enough to interrupt, the LLM-gated trigger the
// timeout and cancellation triggers don't cover.
type ProviderStopChecker struct {
	Provider provider.Provider
	Model    string

	// Instruction overrides the default judgment prompt, for callers that
	// want a narrower stop condition than "looks stuck or done".
	Instruction string
}

func (c *ProviderStopChecker) ShouldStop(ctx context.Context, linesSoFar int, recentOutput string) (bool, error) {
	instruction := c.Instruction
	if instruction == "" {
		instruction = "You are watching the output of a long-running shell command. Reply with exactly one word: STOP if the output shows the command is hung, looping, or has produced its useful result and continuing wastes time; CONTINUE otherwise."
	}

	req := provider.Request{
		Messages: []convo.Message{
			{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart(recentOutput)}},
		},
		SystemPrompt: instruction,
		Options: provider.Options{
			Model:     c.Model,
			MaxTokens: 8,
		},
	}

	var out strings.Builder
	for ev, err := range c.Provider.Send(ctx, req) {
		if err != nil {
			return false, err
		}
		if ev.Type == provider.EventTextDelta {
			out.WriteString(ev.Text)
		}
	}

	return strings.Contains(strings.ToUpper(out.String()), "STOP"), nil
}
