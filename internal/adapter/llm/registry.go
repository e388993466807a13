package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"llm-proxy/internal/domain"
)

// aliases maps common alternate names to canonical provider names.
// Resolution is case-insensitive.
var aliases = map[string]string{
	"claude":  "anthropic",
	"fw":      "fireworks",
	"google":  "gemini",
	"gpt":     "openai",
	"mixtral": "mistral",
}

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.ChatProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.ChatProvider),
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.ChatProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(provider.Name())
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Resolve retrieves a provider by name or alias (case-insensitive).
// An unknown name is an unsupported-provider error; there is no silent
// fallback.
func (r *Registry) Resolve(name string) (domain.ChatProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(name)
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	p, ok := r.providers[key]
	if !ok {
		return nil, domain.NewDomainError("Registry.Resolve", domain.ErrUnsupportedProvider, name)
	}
	return p, nil
}

// ListConfigured returns capability descriptors for every registered vendor
// that currently has credentials configured, ordered by name.
func (r *Registry) ListConfigured() []domain.Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Capabilities, 0, len(r.providers))
	for _, p := range r.providers {
		caps := p.Capabilities()
		if !caps.Configured {
			continue
		}
		out = append(out, caps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
