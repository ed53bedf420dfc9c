// Package registry holds the set of saved-object types the service accepts.
package registry

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
)

// TypeDef describes one registered saved-object type.
type TypeDef struct {
	Name          string
	NamespaceType savedobject.NamespaceType
	Hidden        bool
}

// Registry is an immutable set of type definitions.
type Registry struct {
	types map[string]TypeDef
}

// New validates defs and builds a Registry. Duplicate names are rejected.
func New(defs []TypeDef) (*Registry, error) {
	types := make(map[string]TypeDef, len(defs))
	for _, d := range defs {
		if err := savedobject.ValidateType(d.Name); err != nil {
			return nil, fmt.Errorf("register type: %w", err)
		}
		// attributes live under the type name at the document root
		if fields.IsMetadata(d.Name) {
			return nil, fmt.Errorf("type %q collides with a metadata field", d.Name)
		}
		if _, dup := types[d.Name]; dup {
			return nil, fmt.Errorf("type %q registered twice", d.Name)
		}
		switch d.NamespaceType {
		case "":
			d.NamespaceType = savedobject.NamespaceSingle
		case savedobject.NamespaceSingle, savedobject.NamespaceMultiple, savedobject.NamespaceAgnostic:
		default:
			return nil, fmt.Errorf("type %q: unknown namespace type %q", d.Name, d.NamespaceType)
		}
		types[d.Name] = d
	}
	return &Registry{types: types}, nil
}

// Get returns the definition of a type.
func (r *Registry) Get(name string) (TypeDef, bool) {
	d, ok := r.types[name]
	return d, ok
}

// Names returns all registered type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Visible returns the sorted names of types reachable through the API.
func (r *Registry) Visible() []string {
	names := make([]string, 0, len(r.types))
	for n, d := range r.types {
		if !d.Hidden {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
