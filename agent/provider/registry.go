// Package provider implements the retrieval and augmentation backends
// the planner can select, plus the registry that resolves them by name.
package provider

import (
	"sort"
	"strings"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// MapRegistry is an immutable name-to-provider table built at startup.
type MapRegistry struct {
	providers map[string]contractx.Provider
}

// NewRegistry indexes the given providers by their reported name. Later
// entries with a duplicate name replace earlier ones.
func NewRegistry(providers ...contractx.Provider) *MapRegistry {
	table := make(map[string]contractx.Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		name := strings.ToUpper(strings.TrimSpace(p.Name()))
		if name == "" {
			continue
		}
		table[name] = p
	}
	return &MapRegistry{providers: table}
}

func (r *MapRegistry) Get(name string) (contractx.Provider, bool) {
	p, ok := r.providers[strings.ToUpper(strings.TrimSpace(name))]
	return p, ok
}

// Names returns the registered provider names in sorted order.
func (r *MapRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// queryFor picks the retrieval query for a provider call: the
// context-free rewrite when the turn produced one, the raw question
// otherwise.
func queryFor(exec *contractx.ExecContext) string {
	if exec == nil {
		return ""
	}
	if exec.State != nil {
		if q, ok := exec.State.Values.Extra["standaloneQuestion"].(string); ok && q != "" {
			return q
		}
	}
	if exec.Message != nil {
		return exec.Message.Question
	}
	return ""
}
