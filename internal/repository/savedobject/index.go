package savedobject

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/savedobjects/internal/db"
)

// Index field aliases used in FT.SEARCH queries.
const (
	typeAlias      = "type"
	namespaceAlias = "namespace"
)

// buildIndex describes the FT index over all saved-object documents.
func buildIndex(name, prefix string) (*db.IndexDefinition, error) {
	def, err := db.NewIndex(name).
		Prefix(prefix).
		Tag("$.type", typeAlias).
		Tag("$."+namespaceTagField+"[*]", namespaceAlias).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build index %s: %w", name, err)
	}
	return def, nil
}

// EnsureIndex creates the saved-objects index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	def, err := buildIndex(r.IndexName(), r.prefix)
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	return nil
}
