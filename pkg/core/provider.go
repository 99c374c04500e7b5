package core

import (
	"context"
	"sort"
	"sync"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

// Provider is the interface that all LLM providers must implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "groq", "gemini").
	Name() string

	// Complete sends a non-streaming chat request.
	Complete(ctx context.Context, req *types.CompletionRequest) (*types.CompletionResponse, error)
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(provider Provider)

	// Get returns a provider by name.
	Get(name string) (Provider, bool)

	// List returns all registered provider names.
	List() []string
}

type defaultRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry() ProviderRegistry {
	return &defaultRegistry{
		providers: make(map[string]Provider),
	}
}

func (r *defaultRegistry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

func (r *defaultRegistry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

func (r *defaultRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
