package tool

import (
	"context"
	"fmt"
	"sort"
)

// Registry is a name-keyed collection of tools, optionally backed by
// dynamic Providers (MCP servers) whose tool lists are refreshed on
// demand.
type Registry struct {
	static    map[string]Tool
	providers []Provider
}

func NewRegistry() *Registry {
	return &Registry{static: map[string]Tool{}}
}

// Register adds a statically-known tool, panicking on a duplicate name
// since that indicates a wiring bug at startup, not a runtime condition.
func (r *Registry) Register(t Tool) {
	if _, exists := r.static[t.Name]; exists {
		panic(fmt.Sprintf("tool: duplicate registration for %q", t.Name))
	}
	r.static[t.Name] = t
}

// AddProvider registers a dynamic source of tools. Its tools become
// visible to Lookup and All only once Refresh merges them in.
func (r *Registry) AddProvider(p Provider) {
	r.providers = append(r.providers, p)
}

// Lookup resolves a tool by name against the static set only; dynamic
// providers must be materialized via Refresh before Lookup will see
// their tools.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.static[name]
	return t, ok
}

// Refresh pulls the current tool list from every registered Provider and
// merges it into the static set, overwriting any prior entry with the
// same name.
func (r *Registry) Refresh(ctx context.Context) error {
	for _, p := range r.providers {
		tools, err := p.Tools(ctx)
		if err != nil {
			return fmt.Errorf("tool: refresh provider: %w", err)
		}
		for _, t := range tools {
			r.static[t.Name] = t
		}
	}
	return nil
}

// All returns every registered tool sorted by name, suitable for
// advertising to a provider adapter as the request's tool list.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.static))
	for _, t := range r.static {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
