package broker

import (
	"fmt"
	"sync"
)

// Registry maps canonical broker identifiers to their descriptors. It is
// filled once at startup and read by the dispatcher afterwards.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	order       []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds d under its canonical name. Registering a name twice or an
// incomplete descriptor is an error.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	d.Name = Resolve(d.Name)
	key := Key(d.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descriptors[key]; ok {
		return fmt.Errorf("broker %s already registered", d.Name)
	}
	r.descriptors[key] = d
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister is Register that panics on error. It suits built-in
// descriptors, whose names are distinct and whose entry points are always
// set.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor for name after alias resolution.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[Key(name)]
	return d, ok
}

// Names returns the registered broker names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Known reports whether name is a supported identifier or has been
// registered (test doubles register names outside the supported list).
func (r *Registry) Known(name string) bool {
	if IsSupported(name) {
		return true
	}
	_, ok := r.Lookup(name)
	return ok
}
