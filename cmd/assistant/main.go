// Command assistant is the terminal entrypoint: a positional query runs one
// turn non-interactively; with no query it opens a line-oriented REPL.
// Grounded on the cobra root-command-with-flags shape (theRebelliousNerd's
// cmd/nerd/main.go) generalized down to this runtime's four flags.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kernelloop/assistant/pkg/agent"
	"github.com/kernelloop/assistant/pkg/config"
	"github.com/kernelloop/assistant/pkg/errs"
	"github.com/kernelloop/assistant/pkg/logging"
	"github.com/kernelloop/assistant/pkg/provider/anthropic"
	"github.com/kernelloop/assistant/pkg/provider/gemini"
	"github.com/kernelloop/assistant/pkg/provider/openai"
	"github.com/kernelloop/assistant/pkg/session"
)

var (
	modelFlag   string
	systemFlag  string
	resumeFlag  bool
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "assistant [query]",
	Short: "An interactive terminal AI assistant with file, shell, and delegation tools",
	Long: `assistant runs an agent loop against your terminal session: it reads and
edits files, runs shell commands, fetches URLs, and can delegate scoped
work to subagents.

With a positional query, it runs one turn and prints the final answer.
Without one, it opens an interactive prompt.`,
	Args: cobra.ArbitraryArgs,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&modelFlag, "model", "", "override the model, optionally prefixed with a provider name (e.g. anthropic/claude-opus-4)")
	rootCmd.Flags().StringVar(&systemFlag, "system", "", "override the default system prompt")
	rootCmd.Flags().BoolVar(&resumeFlag, "resume", false, "resume the most recently saved session")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errs.ExitCode(err))
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := logging.New(verboseFlag)
	if err != nil {
		return errs.Fatal("failed to initialize logger", err)
	}
	defer logger.Sync()
	ctx = logging.WithLogger(ctx, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Default(ctx)
	if err != nil {
		return errs.Fatal("failed to load configuration", err)
	}
	defer cfg.Cleanup()

	if modelFlag != "" {
		applyModelOverride(cfg, modelFlag)
	}

	systemPrompt := cfg.Instructions
	if systemFlag != "" {
		systemPrompt = systemFlag
	}

	store, storeErr := openSessionStore()

	var doc *session.Document
	if resumeFlag && store != nil {
		if doc, err = resumeSession(store); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not resume session: %v\n", err)
		}
	}
	if doc == nil {
		doc = session.NewDocument(cfg.Model, providerName(cfg))
	}

	a := agent.New(agent.Config{
		Provider:         cfg.Provider,
		Model:            cfg.Model,
		SystemPrompt:     systemPrompt,
		MaxTokens:        cfg.MaxTokens,
		ThinkingBudget:   cfg.ThinkingBudget,
		MaxContextTokens: cfg.MaxContextTokens,
		ReserveTokens:    cfg.ReserveTokens,
		KeepRecentTokens: cfg.KeepRecentTokens,
		RetryPolicy:      cfg.RetryPolicy,
		Tools:            cfg.Tools,
		Env:              cfg.Environment,
		SummaryProvider:  cfg.SummaryProvider,
		SummaryModel:     cfg.SummaryModel,
	})
	a.Load(doc.Messages)

	query := strings.TrimSpace(strings.Join(args, " "))

	if query != "" {
		return runOnce(ctx, a, doc, store, query)
	}

	return runInteractive(ctx, a, doc, store, storeErr)
}

func runOnce(ctx context.Context, a *agent.Agent, doc *session.Document, store *session.Store, query string) error {
	var finalErr error

	for ev, err := range a.Send(ctx, query) {
		if err != nil {
			finalErr = err
			break
		}
		switch ev.Type {
		case agent.EventTextDelta:
			fmt.Print(ev.Text)
		}
	}

	fmt.Println()

	saveSession(store, doc, a)

	if finalErr != nil {
		return classifyErr(finalErr)
	}

	return nil
}

func runInteractive(ctx context.Context, a *agent.Agent, doc *session.Document, store *session.Store, storeErr error) error {
	if storeErr != nil {
		fmt.Fprintf(os.Stderr, "warning: session persistence disabled: %v\n", storeErr)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("Type your request, or 'exit' to quit.")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		var turnErr error
		for ev, err := range a.Send(ctx, line) {
			if err != nil {
				turnErr = err
				break
			}
			switch ev.Type {
			case agent.EventTextDelta:
				fmt.Print(ev.Text)
			}
		}
		fmt.Println()

		saveSession(store, doc, a)

		if turnErr != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", turnErr)
			if errs.KindOf(turnErr) == errs.KindFatal {
				return classifyErr(turnErr)
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	return nil
}

func openSessionStore() (*session.Store, error) {
	dir, err := session.DefaultDir()
	if err != nil {
		return nil, err
	}
	return session.New(dir)
}

func resumeSession(store *session.Store) (*session.Document, error) {
	id, err := store.LastActive()
	if err != nil {
		return nil, err
	}
	return store.Load(id)
}

func saveSession(store *session.Store, doc *session.Document, a *agent.Agent) {
	if store == nil {
		return
	}
	doc.Messages = a.Messages()
	if err := store.Save(doc); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save session: %v\n", err)
	}
}

// applyModelOverride parses an optional "provider/model" prefix and, when a
// known provider name is given, swaps cfg.Provider to a fresh client for it
// using whichever credential env var that family expects.
func applyModelOverride(cfg *config.Config, spec string) {
	family, model, hasProvider := strings.Cut(spec, "/")
	if !hasProvider {
		cfg.Model = spec
		return
	}

	switch strings.ToLower(family) {
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.Provider = anthropic.New(key)
		}
	case "gemini", "google":
		if key := firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")); key != "" {
			if g, err := gemini.New(context.Background(), key); err == nil {
				cfg.Provider = g
			}
		}
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Provider = openai.New(key)
		}
	case "openrouter":
		if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
			cfg.Provider = openai.NewOpenRouter(key, os.Getenv("OPENROUTER_REFERER"), os.Getenv("OPENROUTER_TITLE"))
		}
	}

	cfg.Model = model
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func providerName(cfg *config.Config) string {
	switch cfg.Provider.(type) {
	case *anthropic.Adapter:
		return "anthropic"
	case *gemini.Adapter:
		return "gemini"
	case *openai.Adapter:
		return "openai"
	default:
		return "unknown"
	}
}

func classifyErr(err error) error {
	if _, ok := err.(*errs.Error); ok {
		return err
	}
	return errs.New(errs.KindFatal, "agent loop failed", err)
}
