package savedobject

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	domso "github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
)

// Store bookkeeping fields, never exposed as metadata.
const (
	versionField      = "__version"
	namespaceTagField = "__namespace"
)

// timeLayout is RFC 3339 with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// rawMeta is the root-level part of a stored document. Attributes live under
// the key named by Type and are decoded separately.
type rawMeta struct {
	Type             string            `json:"type"`
	Namespace        string            `json:"namespace"`
	Namespaces       []string          `json:"namespaces"`
	References       []domso.Reference `json:"references"`
	MigrationVersion map[string]string `json:"migrationVersion"`
	UpdatedAt        string            `json:"updated_at"`
	OriginID         string            `json:"originId"`
	Workspaces       []string          `json:"workspaces"`
	Permissions      domso.Permissions `json:"permissions"`
	Version          int               `json:"__version"`
}

// encodeRaw serializes an object into the stored document layout.
func encodeRaw(st domso.State, nsTag []string) ([]byte, error) {
	attrs := st.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	refs := st.References
	if refs == nil {
		refs = []domso.Reference{}
	}

	doc := map[string]any{
		fields.FieldType:       st.Type,
		st.Type:                attrs,
		fields.FieldReferences: refs,
		fields.FieldUpdatedAt:  st.UpdatedAt.UTC().Format(timeLayout),
		versionField:           st.Version,
		namespaceTagField:      nsTag,
	}
	if st.Namespace != "" {
		doc[fields.FieldNamespace] = st.Namespace
	}
	if len(st.Namespaces) > 0 {
		doc[fields.FieldNamespaces] = st.Namespaces
	}
	if len(st.MigrationVersion) > 0 {
		doc[fields.FieldMigrationVersion] = st.MigrationVersion
	}
	if st.OriginID != "" {
		doc[fields.FieldOriginID] = st.OriginID
	}
	if st.Workspaces != nil {
		doc[fields.FieldWorkspaces] = st.Workspaces
	}
	if st.Permissions != nil {
		doc[fields.FieldPermissions] = st.Permissions
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal saved object: %w", err)
	}
	return data, nil
}

// decodeRaw parses one stored (or merged partial) document. The id is not
// part of the document and is left empty.
func decodeRaw(data []byte) (domso.State, error) {
	var meta rawMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domso.State{}, fmt.Errorf("unmarshal saved object: %w", err)
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return domso.State{}, fmt.Errorf("unmarshal saved object: %w", err)
	}

	attrs := map[string]any{}
	if raw, ok := root[meta.Type]; ok && meta.Type != "" {
		decoded, err := decodeAttributes(raw)
		if err != nil {
			return domso.State{}, err
		}
		attrs = decoded
	}

	st := domso.State{
		Type:             meta.Type,
		Namespace:        meta.Namespace,
		Namespaces:       meta.Namespaces,
		Attributes:       attrs,
		References:       meta.References,
		MigrationVersion: meta.MigrationVersion,
		OriginID:         meta.OriginID,
		Workspaces:       meta.Workspaces,
		Permissions:      meta.Permissions,
		Version:          meta.Version,
	}
	if meta.UpdatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, meta.UpdatedAt); err == nil {
			st.UpdatedAt = ts
		}
	}
	return st, nil
}

// decodeAttributes keeps numbers as json.Number so large integers round-trip.
func decodeAttributes(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}

// namespaceTag is the value indexed for namespace filtering. Agnostic types
// are tagged with the wildcard.
func namespaceTag(nsType domso.NamespaceType, st domso.State) []string {
	switch nsType {
	case domso.NamespaceMultiple:
		return slices.Clone(st.Namespaces)
	case domso.NamespaceAgnostic:
		return []string{fields.Wildcard}
	default:
		if st.Namespace == "" {
			return []string{domso.DefaultNamespace}
		}
		return []string{st.Namespace}
	}
}
