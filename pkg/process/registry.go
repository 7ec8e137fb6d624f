package process

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/hearth/pkg/capability"
	"github.com/cuemby/hearth/pkg/herr"
)

// Directory is a named-service lookup, queried by guest code and local
// plugins. The canonical implementation, Registry, is immutable; the
// interface leaves room for a mutable variant without disturbing callers.
type Directory interface {
	Get(name string) (capability.Value, error)
	List() []string
	Register(name string, v capability.Value) error
	Mutable() bool
}

// Registry is an immutable per-peer service directory: names are seeded
// once at construction, and Register always fails with
// herr.RegistryImmutable.
type Registry struct {
	mu       sync.RWMutex
	services map[string]capability.Value
}

// NewRegistry seeds an immutable registry with the given name→capability
// bindings.
func NewRegistry(services map[string]capability.Value) *Registry {
	copied := make(map[string]capability.Value, len(services))
	for name, v := range services {
		copied[name] = v
	}
	return &Registry{services: copied}
}

// Get looks up a service by name.
func (r *Registry) Get(name string) (capability.Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.services[name]
	if !ok {
		return capability.Value{}, fmt.Errorf("process: registry: %q: %w", name, herr.NotFound)
	}
	return v, nil
}

// List returns every registered service name, sorted for deterministic
// output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register always fails: this registry's contents are frozen at
// construction time.
func (r *Registry) Register(name string, v capability.Value) error {
	return fmt.Errorf("process: registry: register %q: %w", name, herr.RegistryImmutable)
}

// Mutable reports false: this is the immutable registry variant.
func (r *Registry) Mutable() bool {
	return false
}

var _ Directory = (*Registry)(nil)
