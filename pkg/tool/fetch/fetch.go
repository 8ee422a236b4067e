// Package fetch implements a URL-fetching tool, grounded on the domain
// shape of the teacher's absent web tool but modeled after
// pkg/tool/duckduckgo's plain http.Client GET-and-strip pattern,
// generalized from regexp tag-stripping to a proper
// golang.org/x/net/html walk, and adding an optional cheap-model
// summarization pass the teacher's search tool never needed since it
// already returned pre-summarized search snippets.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/kernelloop/assistant/pkg/convo"
	"github.com/kernelloop/assistant/pkg/provider"
	"github.com/kernelloop/assistant/pkg/tool"
)

const (
	maxResponseBytes = 2 * 1024 * 1024
	maxTextChars     = 20000
)

// Summarizer condenses fetched page text via a cheap model call. Left
// unset, the fetch tool returns the stripped text verbatim (truncated).
type Summarizer struct {
	Provider provider.Provider
	Model    string
}

func Tools(summarizer *Summarizer) []tool.Tool {
	return []tool.Tool{FetchTool(summarizer)}
}

func FetchTool(summarizer *Summarizer) tool.Tool {
	return tool.Tool{
		Name:        "fetch",
		Description: "Fetch a URL and return its text content with HTML markup stripped. Use this to read documentation, issues, or other web pages the user references.",

		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "The URL to fetch"},
				"summarize": map[string]any{
					"type":        "boolean",
					"description": "If true, condense the page with a cheap-model call instead of returning raw stripped text",
				},
			},
			"required": []string{"url"},
		},

		Capabilities: tool.Capabilities{ReadOnly: true, Network: true},

		Execute: func(ctx context.Context, env *tool.Environment, args map[string]any) (string, error) {
			return execute(ctx, summarizer, args)
		},
	}
}

func execute(ctx context.Context, summarizer *Summarizer, args map[string]any) (string, error) {
	rawURL, ok := args["url"].(string)
	if !ok || rawURL == "" {
		return "", fmt.Errorf("url is required")
	}

	text, err := fetchAndStrip(ctx, rawURL)
	if err != nil {
		return "", err
	}

	wantSummary, _ := args["summarize"].(bool)
	if wantSummary && summarizer != nil && summarizer.Provider != nil {
		summary, err := summarize(ctx, summarizer, text)
		if err != nil {
			return "", fmt.Errorf("fetch succeeded but summarization failed: %w", err)
		}
		return summary, nil
	}

	if len(text) > maxTextChars {
		text = text[:maxTextChars] + "\n[...truncated...]"
	}

	return text, nil
}

func fetchAndStrip(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; assistant-fetch/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch failed: %s returned status %d", rawURL, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxResponseBytes)

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "html") {
		body, err := io.ReadAll(limited)
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}
		return string(body), nil
	}

	doc, err := html.Parse(limited)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	var sb strings.Builder
	extractText(doc, &sb)

	return collapseWhitespace(sb.String()), nil
}

// extractText walks the parsed document, skipping script/style content,
// and writes visible text nodes to sb in document order.
func extractText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
		return
	}

	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
			sb.WriteString("\n")
		}
	}
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func summarize(ctx context.Context, s *Summarizer, text string) (string, error) {
	if len(text) > maxTextChars {
		text = text[:maxTextChars]
	}

	req := provider.Request{
		Messages: []convo.Message{
			{Role: convo.RoleUser, Parts: []convo.Part{convo.TextPart(text)}},
		},
		SystemPrompt: "Summarize the following fetched web page content concisely, preserving any facts, numbers, and code the reader would need.",
		Options: provider.Options{
			Model:     s.Model,
			MaxTokens: 1024,
		},
	}

	var out strings.Builder
	for ev, err := range s.Provider.Send(ctx, req) {
		if err != nil {
			return "", err
		}
		if ev.Type == provider.EventTextDelta {
			out.WriteString(ev.Text)
		}
	}

	return out.String(), nil
}
