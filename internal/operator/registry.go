// Package operator maps operator names to implementations.
//
// Operators register a Factory under the name descriptors use in their op=
// parameter. Names match case-insensitively, the same way schema documents
// are found in the registry directory.
package operator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/cases"

	"opgrid/internal/lifecycle"
	"opgrid/internal/operator/demo"
	"opgrid/internal/services"
)

// ErrUnknownOperator is returned by Lookup for unregistered names.
var ErrUnknownOperator = errors.New("unknown operator")

// Factory builds a fresh operator instance for one job on one rank.
type Factory func() lifecycle.Operator

// Registry is a name to Factory dispatch table.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]entry
	folder    cases.Caser
}

type entry struct {
	name    string
	factory Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]entry), folder: cases.Fold()}
}

func (r *Registry) key(name string) string {
	return r.folder.String(name)
}

// Register adds factory under name. Registering a name twice is an error.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register operator: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.key(name)
	if existing, ok := r.factories[key]; ok {
		return fmt.Errorf("register operator %q: already registered as %q", name, existing.name)
	}
	r.factories[key] = entry{name: name, factory: factory}
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Lookup builds a new operator for name.
func (r *Registry) Lookup(name string) (lifecycle.Operator, error) {
	r.mu.RLock()
	e, ok := r.factories[r.key(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "operator", "lookup",
			fmt.Sprintf("no operator registered as %q", name), ErrUnknownOperator)
	}
	return e.factory(), nil
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for _, e := range r.factories {
		names = append(names, e.name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry holding the built-in operators.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(demo.Name, func() lifecycle.Operator { return demo.New() })
	return r
}
