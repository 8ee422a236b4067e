// Package prompt embeds and renders the system-instruction templates the
// main agent and its delegated task nodes run under, grounded on the
// teacher's pkg/prompt embed-and-render pattern and pkg/config's
// renderInstructions, generalized to a named-template-per-role scheme so
// the orchestrator can select a child's system prompt by task kind.
package prompt

import (
	"bytes"
	_ "embed"
	"sort"
	"strings"
	"text/template"

	"github.com/kernelloop/assistant/pkg/tool"
)

// Kind names a system-prompt role. The default interactive agent runs as
// Coder; the task tool selects among the rest for delegated subagents.
type Kind string

const (
	Coder          Kind = "coder"
	Researcher     Kind = "researcher"
	Troubleshooter Kind = "troubleshooter"
	Orchestrator   Kind = "orchestrator"
)

//go:embed header.txt
var header string

//go:embed coder.txt
var coder string

//go:embed researcher.txt
var researcher string

//go:embed troubleshooter.txt
var troubleshooter string

//go:embed orchestrator.txt
var orchestrator string

//go:embed compaction.txt
var Compaction string

var roleBodies = map[Kind]string{
	Coder:          coder,
	Researcher:     researcher,
	Troubleshooter: troubleshooter,
	Orchestrator:   orchestrator,
}

// ToolAllowlists bounds which tools a delegated task of a given kind may
// be given, intersected against the parent's actual tool set by the
// orchestrator so a child never gains a capability its parent lacks.
var ToolAllowlists = map[Kind][]string{
	Coder:          nil, // nil means "no restriction beyond the parent's set"
	Researcher:     {"read", "glob", "grep", "list", "fetch"},
	Troubleshooter: {"read", "glob", "grep", "list", "shell"},
	Orchestrator:   nil,
}

// Data supplies the values every rendered template has available.
type Data struct {
	*tool.Environment
	Skills string
}

// Render composes the shared header, the kind's role section, and a
// deterministic tool-schema enumeration, then executes the result as a
// text/template against data. Deterministic tool ordering (by name) keeps
// the rendered prompt byte-identical across turns for a fixed tool set, a
// prerequisite for provider-side prompt caching.
func Render(kind Kind, data Data, tools []tool.Tool) (string, error) {
	body, ok := roleBodies[kind]
	if !ok {
		body = coder
	}

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	sb.WriteString(body)
	sb.WriteString("\n\n")
	sb.WriteString(renderToolCatalog(tools))

	return renderTemplate(sb.String(), data)
}

func renderToolCatalog(tools []tool.Tool) string {
	if len(tools) == 0 {
		return ""
	}

	sorted := make([]tool.Tool, len(tools))
	copy(sorted, tools)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, t := range sorted {
		sb.WriteString("- ")
		sb.WriteString(t.Name)
		sb.WriteString(": ")
		sb.WriteString(t.Description)
		sb.WriteString("\n")
	}

	return sb.String()
}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// AllowedTools intersects the parent's tool set with kind's allowlist,
// returning the parent's set unchanged when kind has no restriction.
func AllowedTools(kind Kind, parentTools []tool.Tool) []tool.Tool {
	allow := ToolAllowlists[kind]
	if allow == nil {
		return parentTools
	}

	allowed := make(map[string]bool, len(allow))
	for _, name := range allow {
		allowed[name] = true
	}

	out := make([]tool.Tool, 0, len(parentTools))
	for _, t := range parentTools {
		if allowed[t.Name] {
			out = append(out, t)
		}
	}

	return out
}
