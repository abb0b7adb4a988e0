package fixture

import (
	"fmt"
	"slices"
	"sync"

	"github.com/kuitang/e2ekit/internal/errs"
)

// Registry collects definitions until Graph freezes them.
type Registry struct {
	mu     sync.Mutex
	defs   map[string]Definition
	order  []string
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds def. Dependencies may name fixtures registered later, but a
// registration that closes a cycle is rejected.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("fixture: registry is frozen, cannot register %q", def.Name))
	}
	if def.Name == "" {
		return errs.New(errs.InvalidArgument, "fixture: definition has no name")
	}
	if def.Setup == nil {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("fixture %q: setup is required", def.Name))
	}
	if _, exists := r.defs[def.Name]; exists {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("fixture %q: already registered", def.Name))
	}
	seen := make(map[string]bool, len(def.DependsOn))
	for _, dep := range def.DependsOn {
		if dep == def.Name {
			return &CycleError{Path: []string{def.Name, def.Name}}
		}
		if seen[dep] {
			return errs.New(errs.InvalidArgument, fmt.Sprintf("fixture %q: dependency %q listed twice", def.Name, dep))
		}
		seen[dep] = true
	}
	for _, dep := range def.DependsOn {
		if path := r.pathLocked(dep, def.Name, nil, make(map[string]bool)); path != nil {
			return &CycleError{Path: append([]string{def.Name}, path...)}
		}
	}

	def.DependsOn = slices.Clone(def.DependsOn)
	r.defs[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// MustRegister registers every def and panics on the first error. Intended
// for package-level graph construction.
func (r *Registry) MustRegister(defs ...Definition) *Registry {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// pathLocked returns a dependency path from -> ... -> to over registered
// definitions, or nil when none exists.
func (r *Registry) pathLocked(from, to string, prefix []string, visited map[string]bool) []string {
	prefix = append(prefix, from)
	if from == to {
		return prefix
	}
	if visited[from] {
		return nil
	}
	visited[from] = true
	def, ok := r.defs[from]
	if !ok {
		return nil
	}
	for _, dep := range def.DependsOn {
		if path := r.pathLocked(dep, to, slices.Clone(prefix), visited); path != nil {
			return path
		}
	}
	return nil
}

// Graph validates that every dependency is registered and freezes the
// registry. Calling it again returns an equivalent graph.
func (r *Registry) Graph() (*Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		for _, dep := range r.defs[name].DependsOn {
			if _, ok := r.defs[dep]; !ok {
				return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("fixture %q: depends on unregistered fixture %q", name, dep))
			}
		}
	}
	r.frozen = true

	defs := make(map[string]Definition, len(r.defs))
	for name, def := range r.defs {
		defs[name] = def
	}
	return &Graph{defs: defs, names: slices.Clone(r.order)}, nil
}
