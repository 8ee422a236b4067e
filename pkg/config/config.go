package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/kernelloop/assistant/pkg/mcp"
	"github.com/kernelloop/assistant/pkg/orchestrator"
	"github.com/kernelloop/assistant/pkg/prompt"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/provider/anthropic"
	"github.com/kernelloop/assistant/pkg/provider/gemini"
	"github.com/kernelloop/assistant/pkg/provider/openai"
	"github.com/kernelloop/assistant/pkg/skill"
	"github.com/kernelloop/assistant/pkg/tool"
	"github.com/kernelloop/assistant/pkg/tool/fetch"
	"github.com/kernelloop/assistant/pkg/tool/fs"
	"github.com/kernelloop/assistant/pkg/tool/patch"
	"github.com/kernelloop/assistant/pkg/tool/shell"
	"github.com/kernelloop/assistant/pkg/tool/task"

	openaisdk "github.com/openai/openai-go/v3/option"
)

// defaultModel per family, used when the corresponding env var doesn't
// name one explicitly.
const (
	defaultAnthropicModel = "claude-sonnet-4-5"
	defaultGeminiModel    = "gemini-2.5-pro"
	defaultOpenAIModel    = "gpt-5"

	DefaultMaxTokens        = 8192
	DefaultThinkingBudget   = 0
	DefaultMaxContextTokens = 180000
	DefaultReserveTokens    = 20000
	DefaultKeepRecentTokens = 40000
)

type Config struct {
	Model    string
	Provider provider.Provider

	// SummaryModel/SummaryProvider drive history compaction, normally the
	// same provider on a cheaper model; falls back to Provider/Model when
	// no cheaper tier is configured for the selected family.
	SummaryModel    string
	SummaryProvider provider.Provider

	MaxTokens        int64
	ThinkingBudget   int64
	MaxContextTokens int64
	ReserveTokens    int64
	KeepRecentTokens int64
	RetryPolicy      provider.RetryPolicy

	Environment  *tool.Environment
	Instructions string

	MCP          *mcp.Manager
	Orchestrator *orchestrator.Manager

	Tools  []tool.Tool
	Skills []skill.Skill
}

func Default(ctx context.Context) (*Config, error) {
	workingDir, err := os.Getwd()

	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	root, err := os.OpenRoot(workingDir)

	if err != nil {
		return nil, err
	}

	scratchDir := filepath.Join(os.TempDir(), fmt.Sprintf("assistant-%d", time.Now().Unix()))

	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	scratch, err := os.OpenRoot(scratchDir)

	if err != nil {
		return nil, fmt.Errorf("failed to open scratch directory: %w", err)
	}

	env := tool.NewEnvironment(workingDir, scratchDir, root, scratch)

	prov, model, summaryProv, summaryModel, err := selectProvider()
	if err != nil {
		return nil, err
	}

	retryPolicy := provider.DefaultRetryPolicy()

	// tools is finalized (including the task tool itself) before any tool
	// runs; taskTool's ToolsProvider closure reads it lazily so an
	// orchestrator-kind child can delegate further, using the exact same
	// tool set its parent had, task tool included.
	var tools []tool.Tool

	orch := orchestrator.NewManager()
	taskTmpl := orchestrator.Template{
		Provider:         prov,
		Model:            model,
		SummaryProvider:  summaryProv,
		SummaryModel:     summaryModel,
		MaxTokens:        DefaultMaxTokens,
		ThinkingBudget:   DefaultThinkingBudget,
		MaxContextTokens: DefaultMaxContextTokens,
		ReserveTokens:    DefaultReserveTokens,
		KeepRecentTokens: DefaultKeepRecentTokens,
		RetryPolicy:      retryPolicy,
		Env:              env,
	}

	tools = slices.Concat(
		fs.Tools(),
		shell.Tools(shell.Options{
			StopChecker: &shell.ProviderStopChecker{Provider: summaryProv, Model: summaryModel},
		}),
		patch.Tools(),
		fetch.Tools(&fetch.Summarizer{Provider: summaryProv, Model: summaryModel}),
		task.Tools(orch, taskTmpl, func() []tool.Tool { return tools }),
	)

	mcpManager, _ := mcp.Load(filepath.Join(workingDir, "mcp.json"))
	if mcpManager != nil {
		// A server that fails to connect is dropped with a logged warning
		// rather than aborting startup; Connect already joins per-server
		// errors so a partial failure here is informational only.
		if err := mcpManager.Connect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}

		if mcpTools, err := mcpManager.Tools(ctx); err == nil {
			tools = append(tools, mcpTools...)
		}
	}

	skills, _ := skill.Discover(workingDir)

	instructions, err := prompt.Render(prompt.Coder, prompt.Data{
		Environment: env,
		Skills:      skill.FormatForPrompt(skills),
	}, tools)
	if err != nil {
		return nil, fmt.Errorf("failed to render instructions: %w", err)
	}

	return &Config{
		Provider: prov,
		Model:    model,

		SummaryProvider: summaryProv,
		SummaryModel:    summaryModel,

		MaxTokens:        DefaultMaxTokens,
		ThinkingBudget:   DefaultThinkingBudget,
		MaxContextTokens: DefaultMaxContextTokens,
		ReserveTokens:    DefaultReserveTokens,
		KeepRecentTokens: DefaultKeepRecentTokens,
		RetryPolicy:      retryPolicy,

		Environment:  env,
		Instructions: instructions,

		MCP:          mcpManager,
		Orchestrator: orch,

		Tools:  tools,
		Skills: skills,
	}, nil
}

// selectProvider picks the adapter and model from whichever provider's API
// key is present in the environment, checked in the order the runtime
// documents its precedence: Anthropic, then Gemini, then OpenAI or an
// OpenAI-compatible gateway (OpenRouter, or a self-hosted OPENAI_BASE_URL),
// falling back to a local OpenAI-compatible server for offline development.
func selectProvider() (prov provider.Provider, model string, summaryProv provider.Provider, summaryModel string, err error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model = envOr("ANTHROPIC_MODEL", defaultAnthropicModel)
		a := anthropic.New(key)
		return a, model, a, envOr("ANTHROPIC_SUMMARY_MODEL", "claude-haiku-4-5"), nil
	}

	if key := envAny("GEMINI_API_KEY", "GOOGLE_API_KEY"); key != "" {
		model = envOr("GEMINI_MODEL", defaultGeminiModel)
		g, gerr := gemini.New(context.Background(), key)
		if gerr != nil {
			return nil, "", nil, "", fmt.Errorf("failed to create gemini client: %w", gerr)
		}
		return g, model, g, envOr("GEMINI_SUMMARY_MODEL", "gemini-2.5-flash"), nil
	}

	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		model = envOr("OPENROUTER_MODEL", "openrouter/auto")
		o := openai.NewOpenRouter(key, os.Getenv("OPENROUTER_REFERER"), os.Getenv("OPENROUTER_TITLE"))
		return o, model, o, envOr("OPENROUTER_SUMMARY_MODEL", model), nil
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model = envOr("OPENAI_MODEL", defaultOpenAIModel)
		var opts []openaisdk.RequestOption
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			opts = append(opts, openaisdk.WithBaseURL(baseURL))
		}
		o := openai.New(key, opts...)
		return o, model, o, envOr("OPENAI_SUMMARY_MODEL", "gpt-5-mini"), nil
	}

	// No key configured: point at a local OpenAI-compatible server, the
	// same offline-development fallback the teacher's WINGMAN_URL path
	// covered.
	o := openai.New("-", openaisdk.WithBaseURL("http://localhost:8080/v1"))
	return o, defaultOpenAIModel, o, defaultOpenAIModel, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envAny(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) Cleanup() {
	if c.Orchestrator != nil {
		c.Orchestrator.CloseAll()
	}

	if c.MCP != nil {
		c.MCP.Close()
	}

	if c.Environment == nil {
		return
	}

	if c.Environment.Scratch != nil {
		scratchDir := c.Environment.Scratch.Name()
		c.Environment.Scratch.Close()
		os.RemoveAll(scratchDir)
	}

	if c.Environment.Root != nil {
		c.Environment.Root.Close()
	}
}
