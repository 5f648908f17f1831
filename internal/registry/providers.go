package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/diagnostic"
)

// ProviderRegistry holds diagnostic providers keyed by slug. It is safe for
// concurrent use.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]diagnostic.Provider
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]diagnostic.Provider)}
}

// Register stores p under its slug.
func (r *ProviderRegistry) Register(p diagnostic.Provider) error {
	if p == nil {
		return fmt.Errorf("provider is nil")
	}
	slug := p.Slug()
	if slug == "" {
		return fmt.Errorf("provider slug is required")
	}
	if strings.Contains(slug, "/") {
		return fmt.Errorf("provider slug %q must not contain '/'", slug)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[slug]; exists {
		return fmt.Errorf("provider %q already registered", slug)
	}
	r.providers[slug] = p
	return nil
}

// RegisterFactory builds a provider with factory and registers it. The built
// provider's slug must equal slug.
func (r *ProviderRegistry) RegisterFactory(slug string, factory func() (diagnostic.Provider, error)) error {
	if factory == nil {
		return fmt.Errorf("provider factory is nil for %q", slug)
	}
	p, err := factory()
	if err != nil {
		return fmt.Errorf("construct provider %q: %w", slug, err)
	}
	if p == nil {
		return fmt.Errorf("provider factory returned nil for %q", slug)
	}
	if p.Slug() != slug {
		return fmt.Errorf("provider slug %q does not match registration %q", p.Slug(), slug)
	}
	return r.Register(p)
}

// Get returns the provider registered under slug.
func (r *ProviderRegistry) Get(slug string) (diagnostic.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[slug]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", slug)
	}
	return p, nil
}

// List returns every provider sorted by slug.
func (r *ProviderRegistry) List() []diagnostic.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]diagnostic.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug() < out[j].Slug() })
	return out
}

// Resolve looks up a "provider/diagnostic" slug.
func (r *ProviderRegistry) Resolve(fullSlug string) (diagnostic.Provider, diagnostic.Diagnostic, error) {
	providerSlug, diagnosticSlug, ok := strings.Cut(fullSlug, "/")
	if !ok {
		return nil, nil, fmt.Errorf("diagnostic slug %q must have the form provider/diagnostic", fullSlug)
	}
	p, err := r.Get(providerSlug)
	if err != nil {
		return nil, nil, err
	}
	d, err := p.Get(diagnosticSlug)
	if err != nil {
		return nil, nil, err
	}
	return p, d, nil
}

// Entry pairs a diagnostic with its provider.
type Entry struct {
	Provider   diagnostic.Provider
	Diagnostic diagnostic.Diagnostic
}

// Diagnostics lists every registered diagnostic whose full slug contains any of
// filters, or all of them when no filter is given. Results are ordered by
// provider then diagnostic slug.
func (r *ProviderRegistry) Diagnostics(filters ...string) []Entry {
	var out []Entry
	for _, p := range r.List() {
		for _, d := range p.Diagnostics() {
			if matches(diagnostic.FullSlug(p, d), filters) {
				out = append(out, Entry{Provider: p, Diagnostic: d})
			}
		}
	}
	return out
}

func matches(slug string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.Contains(slug, f) {
			return true
		}
	}
	return false
}
