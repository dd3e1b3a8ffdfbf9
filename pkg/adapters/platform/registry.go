package platform

import (
	"sync"

	"github.com/hatchpad/connector-engine/pkg/models"
)

// Info describes a registered platform for client discovery.
type Info struct {
	Kind        models.PlatformKind `json:"kind"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description"`
}

// Registration bundles adapter metadata with its implementation.
type Registration struct {
	Info    Info
	Adapter Adapter
}

// Registry maps platform kinds to adapters. It is an explicit value built
// once at process start and handed to the services that dispatch on it;
// there is no package-level instance.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.PlatformKind]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.PlatformKind]Registration),
	}
}

// Register adds or replaces the adapter for a platform kind.
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[reg.Info.Kind] = reg
}

// Get returns the adapter for a platform kind.
func (r *Registry) Get(kind models.PlatformKind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.adapters[kind]
	if !ok {
		return nil, false
	}
	return reg.Adapter, true
}

// Registered returns info for all registered platforms, for the client's
// "add connection" picker.
func (r *Registry) Registered() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Info, 0, len(r.adapters))
	for _, reg := range r.adapters {
		result = append(result, reg.Info)
	}
	return result
}
