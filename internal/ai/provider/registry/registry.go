package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/parley-ai/parley/internal/ai/provider/types"
)

// Registry routes model names to registered providers. A model can be
// bound to a provider directly or resolved through a name prefix
// (e.g. "gpt-" -> openai, "gemini-" -> gemini).
type Registry struct {
	mu        sync.RWMutex
	providers map[string]types.Provider
	models    map[string]string // model name -> provider name
	prefixes  map[string]string // model name prefix -> provider name
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		providers: make(map[string]types.Provider),
		models:    make(map[string]string),
		prefixes:  make(map[string]string),
	}
}

// Register adds a provider under its Name()
func (r *Registry) Register(provider types.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// BindModel routes an exact model name to a provider
func (r *Registry) BindModel(model, providerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = providerName
}

// BindPrefix routes every model name with the given prefix to a provider
func (r *Registry) BindPrefix(prefix, providerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = providerName
}

// Get returns a provider by name
func (r *Registry) Get(name string) (types.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return provider, nil
}

// Resolve returns the provider serving the given model name. Exact
// bindings win over prefix bindings; longer prefixes win over shorter.
func (r *Registry) Resolve(model string) (types.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if providerName, ok := r.models[model]; ok {
		if provider, ok := r.providers[providerName]; ok {
			return provider, nil
		}
		return nil, fmt.Errorf("provider %s not found for model %s", providerName, model)
	}

	bestLen := 0
	bestName := ""
	for prefix, providerName := range r.prefixes {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			bestName = providerName
		}
	}
	if bestName != "" {
		if provider, ok := r.providers[bestName]; ok {
			return provider, nil
		}
	}

	return nil, fmt.Errorf("no provider registered for model %s", model)
}

// Knows reports whether the model resolves to a registered provider
func (r *Registry) Knows(model string) bool {
	_, err := r.Resolve(model)
	return err == nil
}

// List returns registered provider names, sorted
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

// ListModels returns the exactly bound model names, sorted
func (r *Registry) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.models))
	for model := range r.models {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Unregister removes a provider and every binding pointing at it
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.providers, name)
	for model, providerName := range r.models {
		if providerName == name {
			delete(r.models, model)
		}
	}
	for prefix, providerName := range r.prefixes {
		if providerName == name {
			delete(r.prefixes, prefix)
		}
	}
}

// Clear removes all providers and bindings
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[string]types.Provider)
	r.models = make(map[string]string)
	r.prefixes = make(map[string]string)
}
