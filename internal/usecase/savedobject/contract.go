package savedobject

import (
	"context"

	"github.com/kailas-cloud/savedobjects/internal/domain/batch"
	domso "github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/registry"
)

// Repository defines the storage contract for saved objects.
type Repository interface {
	Create(ctx context.Context, obj domso.SavedObject, overwrite bool) (domso.SavedObject, error)
	Get(ctx context.Context, namespace, typ, id string, flds fields.Selector) (domso.SavedObject, error)
	BulkGet(ctx context.Context, namespace string, reqs []domso.GetRequest) ([]batch.Result[domso.SavedObject], error)
	Update(ctx context.Context, namespace, typ, id string, upd domso.Update) (domso.SavedObject, error)
	Delete(ctx context.Context, namespace, typ, id string) error
	Find(ctx context.Context, q domso.FindQuery) (domso.FindResult, error)
}

// TypeRegistry resolves registered saved-object types.
type TypeRegistry interface {
	Get(name string) (registry.TypeDef, bool)
	Names() []string
	Visible() []string
}
