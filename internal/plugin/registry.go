package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alumet-io/alumet/pkg/plugin"
)

// Registry holds every known plugin, keyed by name, and computes a
// dependency-ordered load sequence — generalized from the teacher's
// gatherer/processor/forwarder type taxonomy (which doesn't map to
// Source/Transform/Output capability sets) to plain named dependencies.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry returns an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds a plugin descriptor. Returns an error if a plugin with the
// same name is already registered.
func (r *Registry) Register(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := d.Plugin.Name()
	if _, exists := r.descriptors[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.descriptors[name] = d
	return nil
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.descriptors[name]
	if !exists {
		return Descriptor{}, fmt.Errorf("plugin %q not found", name)
	}
	return d, nil
}

// List returns every registered plugin.
func (r *Registry) List() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugins := make([]plugin.Plugin, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		plugins = append(plugins, d.Plugin)
	}
	return plugins
}

// GetLoadOrder performs a deterministic topological sort of the registered
// plugins over their declared Dependencies, ties broken lexicographically
// so repeated runs produce the same order.
func (r *Registry) GetLoadOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	graph := make(map[string][]string) // dep -> dependents
	inDegree := make(map[string]int)

	for name, d := range r.descriptors {
		for _, dep := range d.Dependencies {
			if _, exists := r.descriptors[dep]; !exists {
				return nil, fmt.Errorf("plugin %q has unknown dependency %q", name, dep)
			}
			graph[dep] = append(graph[dep], name)
		}
	}
	for name, d := range r.descriptors {
		inDegree[name] = len(d.Dependencies)
	}

	queue := make([]string, 0)
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(r.descriptors))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		dependents := graph[current]
		sort.Strings(dependents)
		for _, dep := range dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(r.descriptors) {
		return nil, fmt.Errorf("circular dependency detected among plugins")
	}
	return result, nil
}
