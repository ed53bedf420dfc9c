// Package batch holds per-item outcomes of multi-object operations.
package batch

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Result is the outcome of one item of a bulk request, addressed by type and id.
type Result[T any] struct {
	objType string
	id      string
	status  ItemStatus
	value   T
	err     error
}

// NewOK creates a successful item result carrying value.
func NewOK[T any](objType, id string, value T) Result[T] {
	return Result[T]{objType: objType, id: id, status: StatusOK, value: value}
}

// NewError creates a failed item result.
func NewError[T any](objType, id string, err error) Result[T] {
	return Result[T]{objType: objType, id: id, status: StatusError, err: err}
}

// Type returns the saved-object type of the item.
func (r Result[T]) Type() string { return r.objType }

// ID returns the item identifier.
func (r Result[T]) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result[T]) Status() ItemStatus { return r.status }

// Value returns the item payload; zero for failed items.
func (r Result[T]) Value() T { return r.value }

// Err returns the error, if any.
func (r Result[T]) Err() error { return r.err }
