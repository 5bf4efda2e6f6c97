package ai

import (
	"slices"
	"sync"

	"erpinsight/pkg/errors"
)

// ProviderRegistry holds the chat providers that have an API key configured
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[ProviderName]ChatProvider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[ProviderName]ChatProvider)}
}

// Register adds provider under its Name. Names must be unique.
func (r *ProviderRegistry) Register(provider ChatProvider) error {
	if provider == nil {
		return errors.Wrap(errors.ErrInvalidInput, "provider is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := ProviderName(provider.Name())
	if _, exists := r.providers[name]; exists {
		return errors.Wrapf(errors.ErrAlreadyExists, "provider %s", name)
	}
	r.providers[name] = provider
	return nil
}

func (r *ProviderRegistry) Get(name ProviderName) (ChatProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "provider %s", name)
	}
	return provider, nil
}

// Names returns the registered providers in fallback order
func (r *ProviderRegistry) Names() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]ProviderName, 0, len(r.providers))
	for _, n := range AllProviderNames() {
		if _, ok := r.providers[n]; ok {
			names = append(names, n)
		}
	}
	// providers registered under other names (tests) go last, sorted
	var extra []ProviderName
	for n := range r.providers {
		if !n.IsValid() {
			extra = append(extra, n)
		}
	}
	slices.Sort(extra)
	return append(names, extra...)
}

// Select returns preferred when registered. With fallback it otherwise
// returns the first registered provider in fallback order.
func (r *ProviderRegistry) Select(preferred ProviderName, fallback bool) (ChatProvider, ProviderName, error) {
	if p, err := r.Get(preferred); err == nil {
		return p, preferred, nil
	}
	if !fallback {
		return nil, "", errors.Wrapf(errors.ErrInvalidInput, "AI_PROVIDER=%s has no API key configured", preferred)
	}
	for _, name := range r.Names() {
		if p, err := r.Get(name); err == nil {
			return p, name, nil
		}
	}
	return nil, "", errors.Wrap(errors.ErrUnavailable, "no AI provider registered")
}
