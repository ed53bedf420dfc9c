package savedobject

import (
	"fmt"

	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
)

// GetRequest addresses one object of a bulk read.
type GetRequest struct {
	Type   string
	ID     string
	Fields fields.Selector
}

// Update carries the mutable parts of an object.
type Update struct {
	Attributes map[string]any
	// References replaces the stored references when non-nil.
	References []Reference
	// Version is the expected current revision; 0 skips the check.
	Version int
}

// FindQuery selects objects in one namespace.
type FindQuery struct {
	Namespace string
	// Types filters by type and scopes the projection. Nil matches any type.
	Types fields.Selector
	// ExcludeTypes is applied only when Types is nil.
	ExcludeTypes []string
	Fields       fields.Selector
	Page         int
	PerPage      int
}

// FindResult is one page of a find.
type FindResult struct {
	Total   int
	Page    int
	PerPage int
	Objects []SavedObject
}

// ValidateNamespace checks a namespace name. Namespaces share the type alphabet.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("namespace is required")
	}
	if len(ns) > MaxTypeLength || !typeRegex.MatchString(ns) {
		return fmt.Errorf("namespace %q must be lowercase alphanumeric with underscores and hyphens", ns)
	}
	return nil
}
