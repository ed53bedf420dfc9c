package savedobject

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/kailas-cloud/savedobjects/internal/domain"
	"github.com/kailas-cloud/savedobjects/internal/domain/batch"
	domso "github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/registry"
)

// Service handles saved-object CRUD and find.
type Service struct {
	repo            Repository
	types           TypeRegistry
	newID           func() string
	defaultPageSize int
	maxPageSize     int
}

// New creates a saved-object service.
func New(repo Repository, types TypeRegistry) *Service {
	return &Service{
		repo:            repo,
		types:           types,
		newID:           uuid.NewString,
		defaultPageSize: 20,
		maxPageSize:     10000,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Create validates and stores a new object. An empty id is generated.
func (s *Service) Create(
	ctx context.Context, namespace, typ, id string, attrs map[string]any, overwrite bool, opts ...domso.Option,
) (domso.SavedObject, error) {
	def, err := s.typeDef(typ)
	if err != nil {
		return domso.SavedObject{}, err
	}
	ns, err := normalizeNamespace(namespace)
	if err != nil {
		return domso.SavedObject{}, err
	}
	if id == "" {
		id = s.newID()
	}

	obj, err := domso.New(typ, id, attrs, opts...)
	if err != nil {
		return domso.SavedObject{}, fmt.Errorf("validate saved object: %w: %w", domain.ErrInvalidInput, err)
	}

	created, err := s.repo.Create(ctx, obj.WithPlacement(def.NamespaceType, ns), overwrite)
	if err != nil {
		return domso.SavedObject{}, fmt.Errorf("create saved object: %w", err)
	}
	return created, nil
}

// Get reads one object. A nil flds reads every field.
func (s *Service) Get(ctx context.Context, namespace, typ, id string, flds fields.Selector) (domso.SavedObject, error) {
	if _, err := s.typeDef(typ); err != nil {
		return domso.SavedObject{}, err
	}
	ns, err := normalizeNamespace(namespace)
	if err != nil {
		return domso.SavedObject{}, err
	}
	obj, err := s.repo.Get(ctx, ns, typ, id, flds)
	if err != nil {
		return domso.SavedObject{}, fmt.Errorf("get saved object: %w", err)
	}
	return obj, nil
}

// BulkGet reads several objects. Unknown types and missing objects are
// reported per item in request order.
func (s *Service) BulkGet(
	ctx context.Context, namespace string, reqs []domso.GetRequest,
) ([]batch.Result[domso.SavedObject], error) {
	ns, err := normalizeNamespace(namespace)
	if err != nil {
		return nil, err
	}

	results := make([]batch.Result[domso.SavedObject], len(reqs))
	valid := make([]domso.GetRequest, 0, len(reqs))
	positions := make([]int, 0, len(reqs))
	for i, req := range reqs {
		if _, err := s.typeDef(req.Type); err != nil {
			results[i] = batch.NewError[domso.SavedObject](req.Type, req.ID, err)
			continue
		}
		valid = append(valid, req)
		positions = append(positions, i)
	}
	if len(valid) == 0 {
		return results, nil
	}

	found, err := s.repo.BulkGet(ctx, ns, valid)
	if err != nil {
		return nil, fmt.Errorf("bulk get saved objects: %w", err)
	}
	for j, pos := range positions {
		if j < len(found) {
			results[pos] = found[j]
			continue
		}
		results[pos] = batch.NewError[domso.SavedObject](valid[j].Type, valid[j].ID, domain.ErrObjectNotFound)
	}
	return results, nil
}

// Update merges attributes into an existing object.
func (s *Service) Update(
	ctx context.Context, namespace, typ, id string, upd domso.Update,
) (domso.SavedObject, error) {
	if _, err := s.typeDef(typ); err != nil {
		return domso.SavedObject{}, err
	}
	ns, err := normalizeNamespace(namespace)
	if err != nil {
		return domso.SavedObject{}, err
	}
	if upd.Version < 0 {
		return domso.SavedObject{}, fmt.Errorf("version must be positive: %w", domain.ErrInvalidInput)
	}
	obj, err := s.repo.Update(ctx, ns, typ, id, upd)
	if err != nil {
		return domso.SavedObject{}, fmt.Errorf("update saved object: %w", err)
	}
	return obj, nil
}

// Delete removes an object.
func (s *Service) Delete(ctx context.Context, namespace, typ, id string) error {
	if _, err := s.typeDef(typ); err != nil {
		return err
	}
	ns, err := normalizeNamespace(namespace)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ns, typ, id); err != nil {
		return fmt.Errorf("delete saved object: %w", err)
	}
	return nil
}

// Find returns one page of objects. Requested types that are unknown or
// hidden are dropped; with no types every visible type is searched.
func (s *Service) Find(ctx context.Context, q domso.FindQuery) (domso.FindResult, error) {
	ns, err := normalizeNamespace(q.Namespace)
	if err != nil {
		return domso.FindResult{}, err
	}
	q.Namespace = ns

	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = s.defaultPageSize
	}
	if q.PerPage > s.maxPageSize {
		q.PerPage = s.maxPageSize
	}

	if q.Types == nil {
		q.ExcludeTypes = s.hiddenTypes()
	} else {
		// Duplicates are dropped here, so the projection is resolved over
		// distinct types only.
		allowed := fields.Selector{}
		for _, t := range q.Types {
			if _, err := s.typeDef(t); err == nil && !slices.Contains(allowed, t) {
				allowed = append(allowed, t)
			}
		}
		q.Types = allowed
		q.ExcludeTypes = nil
	}

	res, err := s.repo.Find(ctx, q)
	if err != nil {
		return domso.FindResult{}, fmt.Errorf("find saved objects: %w", err)
	}
	return res, nil
}

// typeDef returns the definition of a type reachable through the API.
func (s *Service) typeDef(typ string) (registry.TypeDef, error) {
	def, ok := s.types.Get(typ)
	if !ok || def.Hidden {
		return registry.TypeDef{}, fmt.Errorf("%s: %w", typ, domain.ErrTypeNotFound)
	}
	return def, nil
}

func (s *Service) hiddenTypes() []string {
	visible := s.types.Visible()
	var hidden []string
	for _, n := range s.types.Names() {
		if !slices.Contains(visible, n) {
			hidden = append(hidden, n)
		}
	}
	return hidden
}

func normalizeNamespace(ns string) (string, error) {
	if ns == "" {
		return domso.DefaultNamespace, nil
	}
	if err := domso.ValidateNamespace(ns); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return ns, nil
}
