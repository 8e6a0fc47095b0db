package provider

import (
	"fmt"
	"sync"
)

// Registry maps a model.API identifier to the Adapter that speaks its wire
// dialect, grounded on the provider-name lookup pattern in
// pkg/registry/registry.go, narrowed to this package's single Adapter
// contract since Component F only ever needs dispatch by API, never
// model-alias resolution.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the Adapter serving api.
func (r *Registry) Register(api string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[api] = a
}

// Get returns the Adapter registered for api, or an error if none is
// registered.
func (r *Registry) Get(api string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[api]
	if !ok {
		return nil, fmt.Errorf("provider: no adapter registered for api %q", api)
	}
	return a, nil
}
