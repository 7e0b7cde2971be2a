package source

import (
	"fmt"
	"sort"

	"TechTreeCost/internal/ports"
)

// Registry keeps a mapping from source kinds to their implementations.
type Registry struct {
	sources map[string]ports.PageSource
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]ports.PageSource{}}
}

// Register adds or replaces a page source under its Name.
func (r *Registry) Register(src ports.PageSource) {
	if r.sources == nil {
		r.sources = map[string]ports.PageSource{}
	}
	r.sources[src.Name()] = src
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.PageSource, error) {
	if src, ok := r.sources[name]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("page source %q is not registered (known: %v)", name, r.Names())
}

// Names lists the registered kinds in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
