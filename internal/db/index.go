package db

import (
	"errors"
	"fmt"
	"strings"
)

// IndexField indexes one JSONPath as a TAG field queried as @Alias.
type IndexField struct {
	Path  string
	Alias string
	// CaseSensitive keeps values as written. Identifiers such as types and
	// namespaces must not fold case.
	CaseSensitive bool
}

// IndexDefinition is an FT index over JSON documents under Prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Validate checks that the definition can be sent as FT.CREATE.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if strings.ContainsAny(idx.Name, " \t\r\n") {
		return fmt.Errorf("index name %q contains whitespace", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	aliases := make(map[string]struct{}, len(idx.Fields))
	for i, f := range idx.Fields {
		if !strings.HasPrefix(f.Path, "$") {
			return fmt.Errorf("field %d: path %q is not a JSONPath", i, f.Path)
		}
		if f.Alias == "" {
			return fmt.Errorf("field %d: alias is required", i)
		}
		if _, dup := aliases[f.Alias]; dup {
			return fmt.Errorf("duplicate field alias: %s", f.Alias)
		}
		aliases[f.Alias] = struct{}{}
	}
	return nil
}

// String renders the definition as the FT.CREATE command line.
func (idx *IndexDefinition) String() string {
	parts := []string{"FT.CREATE", idx.Name, "ON", "JSON"}
	if len(idx.Prefixes) > 0 {
		parts = append(parts, "PREFIX")
		parts = append(parts, idx.Prefixes...)
	}
	parts = append(parts, "SCHEMA")
	for _, f := range idx.Fields {
		parts = append(parts, f.Path, "AS", f.Alias, "TAG")
		if f.CaseSensitive {
			parts = append(parts, "CASESENSITIVE")
		}
	}
	return strings.Join(parts, " ")
}
