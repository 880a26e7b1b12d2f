// Registry manages adapter registration and lookup.
//
// DESIGN: Thread-safe map of adapter name → Adapter.
// The Anthropic adapter is registered at startup.
package adapters

import (
	"sync"
)

// Registry manages adapter registration.
type Registry struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates a new adapter registry with the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter),
	}

	r.Register(NewAnthropicAdapter())

	return r
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// Get returns an adapter by name, or nil.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// ForPath returns the adapter that handles requests to path, or nil.
func (r *Registry) ForPath(path string) Adapter {
	if path == AnthropicMessagesPath {
		return r.Get(string(ProviderAnthropic))
	}
	return nil
}
