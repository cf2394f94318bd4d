package provider

import (
	"fmt"
	"sort"
	"strings"

	"chatbridge/internal/errs"
)

// Registry maps provider identifiers to their policies. It is built once and
// read concurrently without locking.
type Registry struct {
	byID map[string]Policy
}

// NewRegistry constructs a registry from policies, or from the built-in table
// when none are given. It panics on a duplicate or incomplete policy since the
// table is static program data.
func NewRegistry(policies ...Policy) *Registry {
	if len(policies) == 0 {
		policies = Builtin()
	}

	r := &Registry{byID: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		id := normalizeID(p.ID)
		if id == "" {
			panic("provider: policy without id")
		}
		if _, exists := r.byID[id]; exists {
			panic(fmt.Sprintf("provider: policy %q registered twice", id))
		}
		if p.URLTemplate == "" || p.Map == nil {
			panic(fmt.Sprintf("provider: policy %q needs a url template and a mapper", id))
		}
		if p.ResponseFormat == "" {
			p.ResponseFormat = FormatOpenAI
		}
		if p.StreamFormat == "" {
			p.StreamFormat = FormatOpenAI
		}
		p.ID = id
		r.byID[id] = p
	}
	return r
}

// Resolve returns the policy registered for id.
func (r *Registry) Resolve(id string) (Policy, error) {
	p, ok := r.byID[normalizeID(id)]
	if !ok {
		return Policy{}, errs.Configuration(id, "provider", "is not a known provider")
	}
	return p, nil
}

// List returns every registered policy ordered by id.
func (r *Registry) List() []Policy {
	out := make([]Policy, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
