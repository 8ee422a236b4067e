package agent

import (
	"context"
	"sort"
	"strings"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/prompt"
	"github.com/kernelloop/assistant/pkg/provider"
)

type CompactionInfo struct {
	InProgress bool
	FromTokens int64
	ToTokens   int64
}

func (a *Agent) shouldCompact(inputTokens int64) bool {
	if a.cfg.MaxContextTokens <= 0 {
		return false
	}

	return inputTokens > a.cfg.MaxContextTokens-a.cfg.ReserveTokens
}

// maybeCompact runs after a turn completes with no pending tool calls,
// summarizing the largest tool-result parts outside the recent window once
// the last reported prompt-token count crosses the configured threshold.
func (a *Agent) maybeCompact(ctx context.Context, yield func(Event, error) bool) error {
	if !a.shouldCompact(a.lastInputTokens) {
		return nil
	}

	if !yield(Event{Type: EventCompactionStart, Compaction: &CompactionInfo{InProgress: true, FromTokens: a.lastInputTokens}}, nil) {
		return errYieldStopped
	}

	info, err := a.compact(ctx, a.lastInputTokens)
	if err != nil {
		return err
	}

	if info == nil {
		return nil
	}

	if !yield(Event{Type: EventCompactionDone, Compaction: info}, nil) {
		return errYieldStopped
	}

	return nil
}

const summarizedPrefix = "[SUMMARIZED "

// toolResultCandidate locates one ToolResult part eligible for
// summarization, along with its current estimated size.
type toolResultCandidate struct {
	msgIdx  int
	partIdx int
	size    int64
}

// compact never rewrites user messages: it only ever replaces the Outcome
// of ToolResult parts, which live on synthetic tool-answering turns, not
// on a user's own text. Everything from cutIdx onward — the most recent
// turns, sized by KeepRecentTokens — is left untouched verbatim.
func (a *Agent) compact(ctx context.Context, inputTokens int64) (*CompactionInfo, error) {
	cutIdx := a.findCutPoint()

	if cutIdx <= 0 {
		return nil, nil
	}

	candidates := a.collectToolResultCandidates(cutIdx)
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].size > candidates[j].size
	})

	target := a.cfg.MaxContextTokens - a.cfg.ReserveTokens

	for _, c := range candidates {
		if a.estimateTokens() <= target {
			break
		}

		if err := a.summarizeToolResultPart(ctx, c); err != nil {
			return nil, err
		}
	}

	return &CompactionInfo{
		FromTokens: inputTokens,
		ToTokens:   a.estimateTokens(),
	}, nil
}

// findCutPoint walks backward from the end of the conversation, keeping
// whole messages until KeepRecentTokens worth of history is preserved
// verbatim, then returns the index at which the eligible-for-summarization
// prefix ends.
func (a *Agent) findCutPoint() int {
	if len(a.messages) < 2 {
		return 0
	}

	var accumulated int64
	cutIdx := len(a.messages)

	for i := len(a.messages) - 1; i >= 0; i-- {
		accumulated += estimateMessageTokens(a.messages[i])

		if accumulated >= a.cfg.KeepRecentTokens {
			cutIdx = i
			break
		}
	}

	if cutIdx <= 0 || cutIdx >= len(a.messages) {
		return 0
	}

	return cutIdx
}

// collectToolResultCandidates scans the summarizable prefix for ToolResult
// parts that have not already been summarized.
func (a *Agent) collectToolResultCandidates(cutIdx int) []toolResultCandidate {
	var out []toolResultCandidate

	for i := 0; i < cutIdx; i++ {
		for j, p := range a.messages[i].Parts {
			if p.ToolResult == nil {
				continue
			}
			if isAlreadySummarized(*p.ToolResult) {
				continue
			}
			out = append(out, toolResultCandidate{
				msgIdx:  i,
				partIdx: j,
				size:    estimateToolResultTokens(*p.ToolResult),
			})
		}
	}

	return out
}

func isAlreadySummarized(tr convo.ToolResult) bool {
	return len(tr.Outcome) == 1 && strings.HasPrefix(tr.Outcome[0].Text, summarizedPrefix)
}

func (a *Agent) estimateTokens() int64 {
	var total int64
	for _, msg := range a.messages {
		total += estimateMessageTokens(msg)
	}
	return total
}

// estimateMessageTokens uses a crude 4-characters-per-token heuristic,
// good enough to size a cut point without depending on any provider's
// tokenizer.
func estimateMessageTokens(msg convo.Message) int64 {
	var length int
	for _, p := range msg.Parts {
		switch {
		case p.Text != nil:
			length += len(*p.Text)
		case p.Thinking != nil:
			length += len(*p.Thinking)
		case p.ToolUse != nil:
			length += len(p.ToolUse.Name) + len(p.ToolUse.InputJSON)
		case p.ToolResult != nil:
			for _, c := range p.ToolResult.Outcome {
				length += len(c.Text)
			}
		}
	}
	return int64(length / 4)
}

func estimateToolResultTokens(tr convo.ToolResult) int64 {
	var length int
	for _, c := range tr.Outcome {
		length += len(c.Text)
	}
	return int64(length / 4)
}

// summarizeToolResultPart replaces the Outcome of a single ToolResult part
// with one text block carrying the [SUMMARIZED prefix scenario 6 asserts,
// leaving the part's identity (its ID, and its position in the message)
// unchanged.
func (a *Agent) summarizeToolResultPart(ctx context.Context, c toolResultCandidate) error {
	tr := a.messages[c.msgIdx].Parts[c.partIdx].ToolResult

	var body strings.Builder
	for _, block := range tr.Outcome {
		body.WriteString(block.Text)
	}

	summary, err := a.summarizeText(ctx, body.String())
	if err != nil {
		return err
	}

	tr.Outcome = []convo.ContentBlock{convo.TextBlock(summarizedPrefix + tr.ID + "] " + summary)}

	return nil
}

// summarizeText condenses arbitrary tool-output text via the summary
// provider, falling back to the primary provider/model when none is
// configured separately.
func (a *Agent) summarizeText(ctx context.Context, text string) (string, error) {
	if len(text) > 8000 {
		text = text[:8000] + "...[truncated]"
	}

	prov := a.cfg.SummaryProvider
	model := a.cfg.SummaryModel
	if prov == nil {
		prov = a.cfg.Provider
		model = a.cfg.Model
	}

	req := provider.Request{
		Messages: []convo.Message{
			{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart(text)}},
		},
		SystemPrompt: prompt.Compaction,
		Options: provider.Options{
			Model:     model,
			MaxTokens: 512,
		},
	}

	var summary strings.Builder

	for ev, err := range a.cfg.RetryPolicy.Send(ctx, prov, req) {
		if err != nil {
			return "", err
		}
		if ev.Type == provider.EventTextDelta {
			summary.WriteString(ev.Text)
		}
	}

	return summary.String(), nil
}
