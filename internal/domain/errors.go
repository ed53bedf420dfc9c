package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidInput signals a malformed request value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrObjectNotFound signals a missing saved object.
	ErrObjectNotFound = errors.New("saved object not found")
	// ErrTypeNotFound signals an unregistered or hidden saved-object type.
	ErrTypeNotFound = errors.New("saved object type not found")

	// ErrRevisionConflict signals an optimistic locking conflict.
	ErrRevisionConflict = errors.New("revision conflict")
	// ErrStrategyNotFound signals an unknown search strategy.
	ErrStrategyNotFound = errors.New("search strategy not found")
	// ErrSearchSessionNotFound signals an expired or unknown async search id.
	ErrSearchSessionNotFound = errors.New("search session not found")
	// ErrNotImplemented signals an unimplemented feature.
	ErrNotImplemented = errors.New("not implemented")
)

// RevisionConflictError wraps ErrRevisionConflict with the current object version.
type RevisionConflictError struct {
	CurrentRevision int
}

func (e *RevisionConflictError) Error() string {
	return fmt.Sprintf("%s: current revision is %d", ErrRevisionConflict.Error(), e.CurrentRevision)
}

func (e *RevisionConflictError) Unwrap() error { return ErrRevisionConflict }

// NewRevisionConflict creates a revision conflict error.
func NewRevisionConflict(currentRevision int) error {
	return &RevisionConflictError{CurrentRevision: currentRevision}
}
