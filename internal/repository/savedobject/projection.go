package savedobject

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
)

const (
	versionPath    = "$." + versionField
	namespacesPath = "$." + fields.FieldNamespaces
)

// projection turns a resolved field list into JSON.GET paths and folds the
// reply back into a partial document.
type projection struct {
	types  fields.Selector
	fields fields.Selector
	// paths is the resolver output: scoped paths, metadata, bare fields.
	paths []string
}

// newProjection returns nil when no fields were requested (full read).
func newProjection(types, flds fields.Selector) *projection {
	paths := fields.IncludedFields(types, flds)
	if paths == nil {
		return nil
	}
	if types == nil {
		types = fields.One(fields.Wildcard)
	}
	return &projection{types: types, fields: flds, paths: paths}
}

func (p *projection) scoped() int { return len(p.types) * len(p.fields) }

func (p *projection) metaEnd() int { return p.scoped() + len(fields.Metadata()) }

// scopedAt returns the type and field of the i-th type-scoped path.
func (p *projection) scopedAt(i int) (string, string) {
	return p.types[i/len(p.fields)], p.fields[i%len(p.fields)]
}

// jsonPaths renders one JSONPath per resolved path, plus the revision.
// A wildcard type is bound to docType when the document type is known.
func (p *projection) jsonPaths(docType string) []string {
	out := make([]string, 0, len(p.paths)+1)
	n := p.scoped()
	for i, path := range p.paths {
		if i < n {
			t, f := p.scopedAt(i)
			if t == fields.Wildcard && docType != "" {
				t = docType
			}
			path = t + "." + f
		}
		out = append(out, jsonPath(path))
	}
	return append(out, versionPath)
}

// merge rebuilds a partial stored document from a multi-path JSON.GET reply.
// rendered must be the slice jsonPaths produced for this read.
func (p *projection) merge(reply []byte, rendered []string, docType string) ([]byte, error) {
	var matches map[string][]json.RawMessage
	if err := json.Unmarshal(reply, &matches); err != nil {
		return nil, fmt.Errorf("decode projection: %w", err)
	}
	first := func(i int) (json.RawMessage, bool) {
		m := matches[rendered[i]]
		if len(m) == 0 {
			return nil, false
		}
		return m[0], true
	}

	n, end := p.scoped(), p.metaEnd()
	doc := make(map[string]any, end-n+2)
	for i := n; i < end; i++ {
		if v, ok := first(i); ok {
			doc[p.paths[i]] = v
		}
	}
	if v, ok := first(len(rendered) - 1); ok {
		doc[versionField] = v
	}

	typ := docType
	if raw, ok := doc[fields.FieldType].(json.RawMessage); ok {
		var t string
		if json.Unmarshal(raw, &t) == nil && t != "" {
			typ = t
		}
	}

	attrs := map[string]any{}
	for i := 0; i < n; i++ {
		t, f := p.scopedAt(i)
		if t != fields.Wildcard && t != typ {
			continue
		}
		if v, ok := first(i); ok {
			setPath(attrs, strings.Split(f, "."), v)
		}
	}

	// documents written before attributes moved under the type key
	for i := end; i < len(p.paths); i++ {
		name := p.paths[i]
		if name == typ || fields.IsMetadata(name) || strings.HasPrefix(name, "__") {
			continue
		}
		segs := strings.Split(name, ".")
		if hasPath(attrs, segs) {
			continue
		}
		if v, ok := first(i); ok {
			setPath(attrs, segs, v)
		}
	}

	if typ != "" {
		doc[typ] = attrs
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode projection: %w", err)
	}
	return data, nil
}

// jsonPath renders a dotted field path as a JSONPath. Segments that are not
// plain identifiers use bracket notation.
func jsonPath(path string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(path, ".") {
		switch {
		case seg == fields.Wildcard:
			b.WriteString(".*")
		case isIdentifier(seg):
			b.WriteString(".")
			b.WriteString(seg)
		default:
			b.WriteString("[")
			b.WriteString(strconv.Quote(seg))
			b.WriteString("]")
		}
	}
	return b.String()
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && (i == 0 || !isDigit) {
			return false
		}
	}
	return true
}

// setPath stores v at segs, creating nested objects. A non-object already on
// the way wins.
func setPath(m map[string]any, segs []string, v any) {
	for _, seg := range segs[:len(segs)-1] {
		next, ok := m[seg]
		if !ok {
			child := map[string]any{}
			m[seg] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return
		}
		m = child
	}
	m[segs[len(segs)-1]] = v
}

func hasPath(m map[string]any, segs []string) bool {
	for i, seg := range segs {
		v, ok := m[seg]
		if !ok {
			return false
		}
		if i == len(segs)-1 {
			return true
		}
		child, ok := v.(map[string]any)
		if !ok {
			return true
		}
		m = child
	}
	return false
}
