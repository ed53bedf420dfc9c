// Package fields resolves the document field paths needed for a partial
// saved-object read.
package fields

// Wildcard stands in for the type when no type is given.
const Wildcard = "*"

// Root-level metadata fields stored alongside every saved object.
const (
	FieldNamespace        = "namespace"
	FieldNamespaces       = "namespaces"
	FieldType             = "type"
	FieldReferences       = "references"
	FieldMigrationVersion = "migrationVersion"
	FieldUpdatedAt        = "updated_at"
	FieldOriginID         = "originId"
	FieldWorkspaces       = "workspaces"
	FieldPermissions      = "permissions"
)

// metadataFields is always part of a projection, in this order. Never mutated.
var metadataFields = [...]string{
	FieldNamespace,
	FieldNamespaces,
	FieldType,
	FieldReferences,
	FieldMigrationVersion,
	FieldUpdatedAt,
	FieldOriginID,
	FieldWorkspaces,
	FieldPermissions,
}

// Selector is an ordered list of type or field names. A nil Selector means
// the selector was not given at all.
type Selector []string

// One wraps a single name into a Selector.
func One(name string) Selector { return Selector{name} }

// Metadata returns a copy of the root-level metadata field list.
func Metadata() []string {
	out := make([]string, len(metadataFields))
	copy(out, metadataFields[:])
	return out
}

// IsMetadata reports whether name is one of the root-level metadata fields.
func IsMetadata(name string) bool {
	for _, f := range metadataFields {
		if f == name {
			return true
		}
	}
	return false
}

// IncludedFields returns the field paths to fetch for the given types and
// fields: every "<type>.<field>" pair (type-major), then the metadata fields,
// then each field bare for documents written in the pre-namespaced layout.
// A nil types selector matches any type. A nil fields selector returns nil,
// meaning the whole document should be fetched.
func IncludedFields(types, fields Selector) []string {
	if fields == nil {
		return nil
	}
	if types == nil {
		types = One(Wildcard)
	}

	out := make([]string, 0, len(types)*len(fields)+len(metadataFields)+len(fields))
	for _, t := range types {
		for _, f := range fields {
			out = append(out, t+"."+f)
		}
	}
	out = append(out, metadataFields[:]...)
	out = append(out, fields...)
	return out
}
