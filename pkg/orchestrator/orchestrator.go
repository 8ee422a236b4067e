// Package orchestrator implements task-tree delegation for the assistant's
// task tool: a Node owns one child agent loop, runs it to completion against
// a role-scoped prompt and tool subset, and exposes a status/result lifecycle
// modeled on the subagent manager pattern (queued/running/waiting_input/
// completed/failed/canceled/timed_out), generalized from a resumable chat
// subagent down to the spec's single-shot delegate-and-return contract.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kernelloop/assistant/pkg/agent"
	"github.com/kernelloop/assistant/pkg/prompt"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	// StatusWaitingInput is reserved for a future host-driven approval
	// gate; SendInput's inject-and-continue path never sets it, since an
	// injected message keeps the child running rather than pausing it.
	StatusWaitingInput Status = "waiting_input"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCanceled     Status = "canceled"
	StatusTimedOut     Status = "timed_out"
	defaultMaxDepth           = 3
	defaultMaxParallel        = 5
	defaultNodeTimeout        = 5 * time.Minute
)

func isTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// Template holds the shared agent configuration a task node inherits from
// its parent: provider, model, and resource limits. Kind-specific fields
// (SystemPrompt, Tools) are filled in per node by Manager.Spawn.
type Template struct {
	Provider         provider.Provider
	Model            string
	SummaryProvider  provider.Provider
	SummaryModel     string
	MaxTokens        int64
	ThinkingBudget   int64
	MaxContextTokens int64
	ReserveTokens    int64
	KeepRecentTokens int64
	RetryPolicy      provider.RetryPolicy
	Env              *tool.Environment
}

// Node is one entry in the task tree: a child agent and its cancellation
// context. Parent-issued messages are forwarded straight to the child
// agent's own interjection queue and applied at its next turn boundary,
// so the child keeps running rather than aborting.
type Node struct {
	ID   string
	Kind prompt.Kind

	agent  *agent.Agent
	ctx    context.Context
	cancel context.CancelFunc

	done chan struct{}

	mu     sync.RWMutex
	status Status
	result string
	errMsg string
}

func (n *Node) setStatus(s Status) {
	n.mu.Lock()
	n.status = s
	n.mu.Unlock()
}

func (n *Node) setResult(result, errMsg string) {
	n.mu.Lock()
	n.result = result
	n.errMsg = errMsg
	n.mu.Unlock()
}

func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// Result returns the node's final text and error message once terminal.
func (n *Node) Result() (text string, errMsg string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.result, n.errMsg
}

// SendInput injects message as an additional user turn in the child's
// conversation, applied at its next turn boundary. The child keeps
// running; this never cancels or fails the task.
func (n *Node) SendInput(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("empty input")
	}
	if isTerminal(n.Status()) {
		return fmt.Errorf("node %s has already finished", n.ID)
	}
	if !n.agent.Interject(message) {
		return fmt.Errorf("node %s interjection queue is full", n.ID)
	}
	return nil
}

func (n *Node) Cancel() {
	n.cancel()
}

type depthKey struct{}

func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

func depthOf(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Manager tracks the task tree spawned from a single top-level agent.
type Manager struct {
	mu          sync.RWMutex
	nodes       map[string]*Node
	maxDepth    int
	maxParallel int
}

func NewManager() *Manager {
	return &Manager{
		nodes:       map[string]*Node{},
		maxDepth:    defaultMaxDepth,
		maxParallel: defaultMaxParallel,
	}
}

func (m *Manager) activeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.nodes {
		if !isTerminal(n.Status()) {
			count++
		}
	}
	return count
}

func (m *Manager) add(n *Node) {
	m.mu.Lock()
	m.nodes[n.ID] = n
	m.mu.Unlock()
}

func (m *Manager) Get(id string) *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[id]
}

// Spawn builds a child agent scoped to kind's prompt and tool allowlist,
// starts its run in a goroutine, and returns the Node immediately; callers
// use Wait to block for completion.
func (m *Manager) Spawn(ctx context.Context, tmpl Template, kind prompt.Kind, objective string, parentTools []tool.Tool, timeout time.Duration) (*Node, error) {
	depth := depthOf(ctx)
	if depth+1 > m.maxDepth {
		return nil, fmt.Errorf("task delegation depth limit (%d) reached", m.maxDepth)
	}
	if m.activeCount() >= m.maxParallel {
		return nil, fmt.Errorf("task delegation parallel limit (%d) reached", m.maxParallel)
	}
	if strings.TrimSpace(objective) == "" {
		return nil, fmt.Errorf("task prompt must not be empty")
	}
	if timeout <= 0 {
		timeout = defaultNodeTimeout
	}

	childTools := prompt.AllowedTools(kind, parentTools)

	systemPrompt, err := prompt.Render(kind, prompt.Data{Environment: tmpl.Env}, childTools)
	if err != nil {
		return nil, fmt.Errorf("failed to render task prompt: %w", err)
	}

	childCtx, cancel := context.WithTimeout(withDepth(ctx, depth+1), timeout)

	cfg := agent.Config{
		Provider:         tmpl.Provider,
		Model:            tmpl.Model,
		SystemPrompt:     systemPrompt,
		MaxTokens:        tmpl.MaxTokens,
		ThinkingBudget:   tmpl.ThinkingBudget,
		MaxContextTokens: tmpl.MaxContextTokens,
		ReserveTokens:    tmpl.ReserveTokens,
		KeepRecentTokens: tmpl.KeepRecentTokens,
		RetryPolicy:      tmpl.RetryPolicy,
		Tools:            childTools,
		Env:              tmpl.Env,
		SummaryProvider:  tmpl.SummaryProvider,
		SummaryModel:     tmpl.SummaryModel,
	}

	node := &Node{
		ID:     uuid.NewString(),
		Kind:   kind,
		agent:  agent.New(cfg),
		ctx:    childCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusQueued,
	}
	m.add(node)

	go m.run(node, objective)

	return node, nil
}

// run drives the child agent's loop to completion. SendInput injects
// messages directly into the child agent's own interjection queue, so a
// parent nudge is picked up at the child's next turn boundary and the
// loop keeps running instead of aborting here.
func (m *Manager) run(node *Node, objective string) {
	defer close(node.done)
	defer node.cancel()

	node.setStatus(StatusRunning)

	var text strings.Builder
	var runErr error

	for ev, err := range node.agent.Send(node.ctx, objective) {
		if err != nil {
			runErr = err
			break
		}
		if ev.Type == agent.EventTextDelta {
			text.WriteString(ev.Text)
		}
	}

	if runErr != nil {
		switch {
		case errors.Is(runErr, context.DeadlineExceeded):
			node.setStatus(StatusTimedOut)
			node.setResult(text.String(), "task timed out")
		case errors.Is(runErr, context.Canceled):
			node.setStatus(StatusCanceled)
			node.setResult(text.String(), "task canceled")
		default:
			node.setStatus(StatusFailed)
			node.setResult(text.String(), runErr.Error())
		}
		return
	}

	node.setStatus(StatusCompleted)
	node.setResult(text.String(), "")
}

// Wait blocks until every named node (or every tracked node, if ids is
// empty) reaches a terminal status, or ctx is done.
func (m *Manager) Wait(ctx context.Context, ids []string) (map[string]Status, bool) {
	pick := m.nodesFor(ids)
	if len(pick) == 0 {
		return map[string]Status{}, false
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		allFinal := true
		for _, n := range pick {
			if !isTerminal(n.Status()) {
				allFinal = false
				break
			}
		}
		if allFinal {
			return snapshot(pick), false
		}
		select {
		case <-ctx.Done():
			return snapshot(pick), true
		case <-ticker.C:
		}
	}
}

func (m *Manager) nodesFor(ids []string) []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(ids) == 0 {
		out := make([]*Node, 0, len(m.nodes))
		for _, n := range m.nodes {
			out = append(out, n)
		}
		return out
	}
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := m.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

func snapshot(nodes []*Node) map[string]Status {
	out := make(map[string]Status, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n.Status()
	}
	return out
}

// CloseAll cancels every tracked node, used to tear down a task tree when
// its owning agent is done or the process is exiting.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.RUnlock()

	for _, n := range nodes {
		n.Cancel()
	}
}
