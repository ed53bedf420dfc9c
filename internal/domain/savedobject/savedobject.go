// Package savedobject defines the saved-object aggregate: a typed, identified
// document persisted with namespace, reference and migration metadata.
package savedobject

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"
)

var (
	typeRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	idRegex   = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

// Length limits for identifiers.
const (
	MaxTypeLength = 128
	MaxIDLength   = 256
)

// DefaultNamespace is used when a request names no namespace.
const DefaultNamespace = "default"

// NamespaceType controls how an object type is isolated between namespaces.
type NamespaceType string

// Namespace isolation modes.
const (
	// NamespaceSingle objects live in exactly one namespace.
	NamespaceSingle NamespaceType = "single"
	// NamespaceMultiple objects can be shared across several namespaces.
	NamespaceMultiple NamespaceType = "multiple"
	// NamespaceAgnostic objects are visible from every namespace.
	NamespaceAgnostic NamespaceType = "agnostic"
)

// Reference points from one saved object to another.
type Reference struct {
	Name string `json:"name"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Principals lists the users and groups granted one permission mode.
type Principals struct {
	Users  []string `json:"users,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// Permissions maps a permission mode (read, write, library_read, ...) to its principals.
type Permissions map[string]Principals

// State is the full set of stored values of a saved object, used to hydrate
// it from storage without validation.
type State struct {
	Type             string
	ID               string
	Namespace        string
	Namespaces       []string
	Attributes       map[string]any
	References       []Reference
	MigrationVersion map[string]string
	UpdatedAt        time.Time
	OriginID         string
	Workspaces       []string
	Permissions      Permissions
	Version          int
}

// SavedObject is the saved-object aggregate (immutable value object).
type SavedObject struct {
	state State
}

// Option customizes a SavedObject created by New.
type Option func(*State)

// WithReferences sets outbound references.
func WithReferences(refs []Reference) Option {
	return func(s *State) { s.References = slices.Clone(refs) }
}

// WithMigrationVersion sets the per-plugin migration versions.
func WithMigrationVersion(mv map[string]string) Option {
	return func(s *State) { s.MigrationVersion = maps.Clone(mv) }
}

// WithOriginID sets the id of the object this one was copied from.
func WithOriginID(id string) Option {
	return func(s *State) { s.OriginID = id }
}

// WithWorkspaces sets the workspaces the object belongs to.
func WithWorkspaces(ws []string) Option {
	return func(s *State) { s.Workspaces = slices.Clone(ws) }
}

// WithPermissions sets the object ACL.
func WithPermissions(p Permissions) Option {
	return func(s *State) { s.Permissions = maps.Clone(p) }
}

// New validates and creates a SavedObject. An empty id is allowed; the service
// assigns one before persisting.
func New(typ, id string, attributes map[string]any, opts ...Option) (SavedObject, error) {
	if err := ValidateType(typ); err != nil {
		return SavedObject{}, err
	}
	if id != "" {
		if err := ValidateID(id); err != nil {
			return SavedObject{}, err
		}
	}
	if attributes == nil {
		return SavedObject{}, fmt.Errorf("attributes are required")
	}
	st := State{
		Type:       typ,
		ID:         id,
		Attributes: maps.Clone(attributes),
		Version:    1,
	}
	for _, opt := range opts {
		opt(&st)
	}
	for i, ref := range st.References {
		if ref.Type == "" || ref.ID == "" {
			return SavedObject{}, fmt.Errorf("reference %d requires type and id", i)
		}
	}
	return SavedObject{state: st}, nil
}

// Reconstruct creates a SavedObject without validation (storage hydration).
func Reconstruct(st State) SavedObject {
	return SavedObject{state: st}
}

// ValidateType checks a saved-object type name.
func ValidateType(typ string) error {
	if typ == "" {
		return fmt.Errorf("type is required")
	}
	if len(typ) > MaxTypeLength {
		return fmt.Errorf("type too long (max %d)", MaxTypeLength)
	}
	if !typeRegex.MatchString(typ) {
		return fmt.Errorf("type %q must be lowercase alphanumeric with underscores and hyphens", typ)
	}
	return nil
}

// ValidateID checks a saved-object id.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("id too long (max %d)", MaxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("id %q contains invalid characters", id)
	}
	return nil
}

// Type returns the saved-object type.
func (o SavedObject) Type() string { return o.state.Type }

// ID returns the object identifier.
func (o SavedObject) ID() string { return o.state.ID }

// Namespace returns the namespace of a single-namespace object.
func (o SavedObject) Namespace() string { return o.state.Namespace }

// Namespaces returns the namespaces of a multi-namespace object.
func (o SavedObject) Namespaces() []string { return o.state.Namespaces }

// Attributes returns the type-specific attributes.
func (o SavedObject) Attributes() map[string]any { return o.state.Attributes }

// References returns outbound references.
func (o SavedObject) References() []Reference { return o.state.References }

// MigrationVersion returns the per-plugin migration versions.
func (o SavedObject) MigrationVersion() map[string]string { return o.state.MigrationVersion }

// UpdatedAt returns the last write time.
func (o SavedObject) UpdatedAt() time.Time { return o.state.UpdatedAt }

// OriginID returns the id of the object this one was copied from.
func (o SavedObject) OriginID() string { return o.state.OriginID }

// Workspaces returns the workspaces the object belongs to.
func (o SavedObject) Workspaces() []string { return o.state.Workspaces }

// Permissions returns the object ACL.
func (o SavedObject) Permissions() Permissions { return o.state.Permissions }

// Version returns the object revision.
func (o SavedObject) Version() int { return o.state.Version }

// State returns a copy of the stored values.
func (o SavedObject) State() State { return o.state }

// WithID returns a copy carrying the given id.
func (o SavedObject) WithID(id string) SavedObject {
	st := o.state
	st.ID = id
	return SavedObject{state: st}
}

// WithPlacement returns a copy placed in the given namespace according to nsType.
func (o SavedObject) WithPlacement(nsType NamespaceType, namespace string) SavedObject {
	st := o.state
	st.Namespace = ""
	st.Namespaces = nil
	switch nsType {
	case NamespaceSingle:
		if namespace != DefaultNamespace {
			st.Namespace = namespace
		}
	case NamespaceMultiple:
		st.Namespaces = []string{namespace}
	case NamespaceAgnostic:
	}
	return SavedObject{state: st}
}

// VisibleIn reports whether the object can be read from namespace.
func (o SavedObject) VisibleIn(namespace string) bool {
	if len(o.state.Namespaces) == 0 {
		return true
	}
	return slices.Contains(o.state.Namespaces, namespace) || slices.Contains(o.state.Namespaces, "*")
}
