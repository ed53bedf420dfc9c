package db

// IndexBuilder assembles an IndexDefinition field by field.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts a JSON index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix adds key prefixes covered by the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Tag indexes path as a case-sensitive TAG field queried as @alias.
func (b *IndexBuilder) Tag(path, alias string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Path:          path,
		Alias:         alias,
		CaseSensitive: true,
	})
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}
