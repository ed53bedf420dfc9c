package savedobject

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/savedobjects/internal/db"
	"github.com/kailas-cloud/savedobjects/internal/domain"
	"github.com/kailas-cloud/savedobjects/internal/domain/batch"
	domso "github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/registry"
	"github.com/kailas-cloud/savedobjects/internal/metrics"
)

// store is the consumer interface for saved objects (ISP).
type store interface {
	JSONSetNX(ctx context.Context, key string, data []byte) (bool, error)
	JSONCompareAndSet(ctx context.Context, key, path string, expected, data []byte) (bool, error)
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, reqs []db.JSONGetRequest) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// typeLookup resolves the namespace handling of a type.
type typeLookup interface {
	Get(name string) (registry.TypeDef, bool)
}

// Default page size when a find query names none.
const defaultPerPage = 20

// maxWriteAttempts bounds the read-compare-write retries of a write that
// lost a race against a concurrent writer.
const maxWriteAttempts = 3

// Repo implements usecase/savedobject.Repository over RedisJSON.
type Repo struct {
	store  store
	types  typeLookup
	prefix string
	now    func() time.Time
}

// New creates a saved-object repository. Keys are namespaced under prefix.
func New(s store, types typeLookup, prefix string) *Repo {
	return &Repo{store: s, types: types, prefix: prefix, now: time.Now}
}

// WithClock overrides the clock used for updated_at.
func (r *Repo) WithClock(now func() time.Time) *Repo {
	if now != nil {
		r.now = now
	}
	return r
}

// Create stores a new object. Without overwrite an existing object is left
// untouched and ErrAlreadyExists is returned; with overwrite the stored
// revision is bumped.
func (r *Repo) Create(ctx context.Context, obj domso.SavedObject, overwrite bool) (domso.SavedObject, error) {
	st := obj.State()
	st.UpdatedAt = r.now().UTC()
	if st.Version == 0 {
		st.Version = 1
	}
	key := r.key(st.Type, st.ID, st.Namespace)

	if overwrite {
		return r.overwrite(ctx, key, st)
	}

	data, err := r.encode(st)
	if err != nil {
		return domso.SavedObject{}, err
	}
	created, err := r.store.JSONSetNX(ctx, key, data)
	if err != nil {
		return domso.SavedObject{}, fmt.Errorf("json.set %s: %w", key, err)
	}
	if !created {
		return domso.SavedObject{}, fmt.Errorf("%s/%s: %w", st.Type, st.ID, domain.ErrAlreadyExists)
	}
	return domso.Reconstruct(st), nil
}

// overwrite replaces the object at key. A multi-namespace object that is not
// visible from the requesting namespace is reported as existing and left
// untouched; a visible one keeps its namespaces.
func (r *Repo) overwrite(ctx context.Context, key string, st domso.State) (domso.SavedObject, error) {
	initial := st.Version
	requested := slices.Clone(st.Namespaces)

	var seen int
	for range maxWriteAttempts {
		cur, found, err := r.placement(ctx, key)
		if err != nil {
			return domso.SavedObject{}, err
		}

		if !found {
			st.Version = initial
			st.Namespaces = requested
			data, err := r.encode(st)
			if err != nil {
				return domso.SavedObject{}, err
			}
			created, err := r.store.JSONSetNX(ctx, key, data)
			if err != nil {
				return domso.SavedObject{}, fmt.Errorf("json.set %s: %w", key, err)
			}
			if created {
				return domso.Reconstruct(st), nil
			}
			continue
		}

		if len(requested) > 0 && len(cur.namespaces) > 0 {
			stored := domso.Reconstruct(domso.State{Namespaces: cur.namespaces})
			if !stored.VisibleIn(requested[0]) {
				return domso.SavedObject{}, fmt.Errorf("%s/%s: %w", st.Type, st.ID, domain.ErrAlreadyExists)
			}
			st.Namespaces = cur.namespaces
		}
		seen = cur.version
		st.Version = initial
		if cur.version > 0 {
			st.Version = cur.version + 1
		}

		data, err := r.encode(st)
		if err != nil {
			return domso.SavedObject{}, err
		}
		written, err := r.store.JSONCompareAndSet(ctx, key, versionPath, versionMatch(cur.version), data)
		if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
			return domso.SavedObject{}, fmt.Errorf("json.set %s: %w", key, err)
		}
		if written {
			return domso.Reconstruct(st), nil
		}
	}
	return domso.SavedObject{}, domain.NewRevisionConflict(seen)
}

// Get reads one object. A nil fields selector reads the whole document;
// otherwise only the resolved field paths are fetched.
func (r *Repo) Get(
	ctx context.Context, namespace, typ, id string, flds fields.Selector,
) (domso.SavedObject, error) {
	key := r.key(typ, id, namespace)
	proj := newProjection(fields.One(typ), flds)
	paths := readPaths(proj, typ)

	raw, err := r.store.JSONGet(ctx, key, paths...)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domso.SavedObject{}, fmt.Errorf("%s/%s: %w", typ, id, domain.ErrObjectNotFound)
		}
		return domso.SavedObject{}, fmt.Errorf("json.get %s: %w", key, err)
	}

	obj, err := r.decode(raw, proj, paths, typ, id)
	if err != nil {
		return domso.SavedObject{}, err
	}
	if !obj.VisibleIn(namespace) {
		return domso.SavedObject{}, fmt.Errorf("%s/%s: %w", typ, id, domain.ErrObjectNotFound)
	}
	return obj, nil
}

// BulkGet reads several objects in one round-trip. Missing objects are
// reported per item; only store failures fail the whole call.
func (r *Repo) BulkGet(
	ctx context.Context, namespace string, reqs []domso.GetRequest,
) ([]batch.Result[domso.SavedObject], error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	gets := make([]db.JSONGetRequest, len(reqs))
	projs := make([]*projection, len(reqs))
	for i, req := range reqs {
		projs[i] = newProjection(fields.One(req.Type), req.Fields)
		gets[i] = db.JSONGetRequest{
			Key:   r.key(req.Type, req.ID, namespace),
			Paths: readPaths(projs[i], req.Type),
		}
	}

	raws, err := r.store.JSONGetMulti(ctx, gets)
	if err != nil {
		return nil, fmt.Errorf("bulk json.get: %w", err)
	}

	results := make([]batch.Result[domso.SavedObject], len(reqs))
	for i, req := range reqs {
		notFound := batch.NewError[domso.SavedObject](req.Type, req.ID, domain.ErrObjectNotFound)
		if i >= len(raws) || raws[i] == nil {
			results[i] = notFound
			continue
		}
		obj, err := r.decode(raws[i], projs[i], gets[i].Paths, req.Type, req.ID)
		if err != nil {
			results[i] = batch.NewError[domso.SavedObject](req.Type, req.ID, err)
			continue
		}
		if !obj.VisibleIn(namespace) {
			results[i] = notFound
			continue
		}
		results[i] = batch.NewOK(req.Type, req.ID, obj)
	}
	return results, nil
}

// Update merges attributes into a stored object: JSON.GET, merge, then a
// compare-and-set on the revision that was read. A non-zero upd.Version must
// match the stored revision; an update without one retries when it loses a
// race.
func (r *Repo) Update(
	ctx context.Context, namespace, typ, id string, upd domso.Update,
) (domso.SavedObject, error) {
	key := r.key(typ, id, namespace)

	var seen int
	for range maxWriteAttempts {
		st, err := r.load(ctx, key, namespace, typ, id)
		if err != nil {
			return domso.SavedObject{}, err
		}
		if upd.Version != 0 && upd.Version != st.Version {
			return domso.SavedObject{}, domain.NewRevisionConflict(st.Version)
		}
		seen = st.Version

		for k, v := range upd.Attributes {
			st.Attributes[k] = v
		}
		if upd.References != nil {
			st.References = slices.Clone(upd.References)
		}
		st.Version++
		st.UpdatedAt = r.now().UTC()

		data, err := r.encode(st)
		if err != nil {
			return domso.SavedObject{}, err
		}
		written, err := r.store.JSONCompareAndSet(ctx, key, versionPath, versionMatch(seen), data)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				return domso.SavedObject{}, fmt.Errorf("%s/%s: %w", typ, id, domain.ErrObjectNotFound)
			}
			return domso.SavedObject{}, fmt.Errorf("json.set %s: %w", key, err)
		}
		if written {
			return domso.Reconstruct(st), nil
		}
	}
	return domso.SavedObject{}, domain.NewRevisionConflict(seen)
}

// load reads the whole stored document, hiding objects not visible from namespace.
func (r *Repo) load(ctx context.Context, key, namespace, typ, id string) (domso.State, error) {
	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domso.State{}, fmt.Errorf("%s/%s: %w", typ, id, domain.ErrObjectNotFound)
		}
		return domso.State{}, fmt.Errorf("json.get %s: %w", key, err)
	}
	doc, err := firstDocument(raw)
	if err != nil {
		return domso.State{}, fmt.Errorf("%s/%s: %w", typ, id, err)
	}
	st, err := decodeRaw(doc)
	if err != nil {
		return domso.State{}, err
	}
	st.ID = id

	if !domso.Reconstruct(st).VisibleIn(namespace) {
		return domso.State{}, fmt.Errorf("%s/%s: %w", typ, id, domain.ErrObjectNotFound)
	}
	return st, nil
}

// Delete removes an object.
func (r *Repo) Delete(ctx context.Context, namespace, typ, id string) error {
	key := r.key(typ, id, namespace)

	visible, err := r.deletable(ctx, key, typ, namespace)
	if err != nil {
		return err
	}
	if !visible {
		return fmt.Errorf("%s/%s: %w", typ, id, domain.ErrObjectNotFound)
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Find searches the index for object keys, then reads the page of objects
// with the projection resolved for q.Types and q.Fields.
func (r *Repo) Find(ctx context.Context, q domso.FindQuery) (domso.FindResult, error) {
	page, perPage := q.Page, q.PerPage
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	namespace := q.Namespace
	if namespace == "" {
		namespace = domso.DefaultNamespace
	}

	if q.Types != nil && len(q.Types) == 0 {
		return domso.FindResult{Page: page, PerPage: perPage}, nil
	}
	typeClause := db.TagQuery(typeAlias, q.Types...)
	if q.Types == nil {
		typeClause = db.Not(db.TagQuery(typeAlias, q.ExcludeTypes...))
	}
	query := db.And(typeClause, db.TagQuery(namespaceAlias, namespace, fields.Wildcard))

	res, err := r.store.SearchList(ctx, r.IndexName(), query, (page-1)*perPage, perPage, []string{typeAlias})
	if err != nil {
		return domso.FindResult{}, fmt.Errorf("search %s: %w", r.IndexName(), err)
	}
	result := domso.FindResult{Page: page, PerPage: perPage}
	if res == nil || len(res.Entries) == 0 {
		if res != nil {
			result.Total = res.Total
		}
		return result, nil
	}
	result.Total = res.Total

	proj := newProjection(q.Types, q.Fields)
	gets := make([]db.JSONGetRequest, len(res.Entries))
	docTypes := make([]string, len(res.Entries))
	for i, entry := range res.Entries {
		docTypes[i] = unquote(entry.Fields[typeAlias])
		gets[i] = db.JSONGetRequest{Key: entry.Key, Paths: readPaths(proj, docTypes[i])}
	}

	raws, err := r.store.JSONGetMulti(ctx, gets)
	if err != nil {
		return domso.FindResult{}, fmt.Errorf("bulk json.get: %w", err)
	}

	result.Objects = make([]domso.SavedObject, 0, len(raws))
	for i, raw := range raws {
		// deleted between search and read
		if raw == nil {
			continue
		}
		obj, err := r.decode(raw, proj, gets[i].Paths, docTypes[i], "")
		if err != nil {
			return domso.FindResult{}, err
		}
		result.Objects = append(result.Objects, obj.WithID(r.idFromKey(gets[i].Key, obj.Type(), obj.Namespace())))
	}
	return result, nil
}

// decode turns a JSON.GET reply into an object, recording the read mode.
func (r *Repo) decode(raw []byte, proj *projection, paths []string, typ, id string) (domso.SavedObject, error) {
	var doc []byte
	if proj == nil {
		first, err := firstDocument(raw)
		if err != nil {
			return domso.SavedObject{}, fmt.Errorf("%s/%s: %w", typ, id, err)
		}
		doc = first
		metrics.ObserveRead(false, 0)
	} else {
		merged, err := proj.merge(raw, paths, typ)
		if err != nil {
			return domso.SavedObject{}, err
		}
		doc = merged
		metrics.ObserveRead(true, len(paths))
	}

	st, err := decodeRaw(doc)
	if err != nil {
		return domso.SavedObject{}, err
	}
	if st.Type == "" {
		st.Type = typ
	}
	st.ID = id
	return domso.Reconstruct(st), nil
}

// deletable reports whether the object exists and is visible from namespace.
func (r *Repo) deletable(ctx context.Context, key, typ, namespace string) (bool, error) {
	if r.namespaceType(typ) != domso.NamespaceMultiple {
		exists, err := r.store.Exists(ctx, key)
		if err != nil {
			return false, fmt.Errorf("check exists %s: %w", key, err)
		}
		return exists, nil
	}

	raw, err := r.store.JSONGet(ctx, key, namespacesPath)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("json.get %s: %w", key, err)
	}
	var matches [][]string
	if err := json.Unmarshal(raw, &matches); err != nil {
		return false, fmt.Errorf("decode namespaces: %w", err)
	}
	var namespaces []string
	if len(matches) > 0 {
		namespaces = matches[0]
	}
	obj := domso.Reconstruct(domso.State{Type: typ, Namespaces: namespaces})
	return obj.VisibleIn(namespace), nil
}

// storedPlacement is the part of a stored document an overwrite checks.
type storedPlacement struct {
	namespaces []string
	version    int
}

// placement reads namespaces and revision of the object at key in one JSON.GET.
func (r *Repo) placement(ctx context.Context, key string) (storedPlacement, bool, error) {
	raw, err := r.store.JSONGet(ctx, key, namespacesPath, versionPath)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return storedPlacement{}, false, nil
		}
		return storedPlacement{}, false, fmt.Errorf("json.get %s: %w", key, err)
	}
	var reply struct {
		Namespaces [][]string `json:"$.namespaces"`
		Versions   []int      `json:"$.__version"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return storedPlacement{}, false, fmt.Errorf("decode placement: %w", err)
	}
	var p storedPlacement
	if len(reply.Namespaces) > 0 {
		p.namespaces = reply.Namespaces[0]
	}
	if len(reply.Versions) > 0 {
		p.version = reply.Versions[0]
	}
	return p, true, nil
}

// versionMatch is the JSON.GET reply for versionPath on a document stored at
// revision v. Revision 0 stands for a document without one.
func versionMatch(v int) []byte {
	if v == 0 {
		return []byte("[]")
	}
	return []byte("[" + strconv.Itoa(v) + "]")
}

func (r *Repo) encode(st domso.State) ([]byte, error) {
	return encodeRaw(st, namespaceTag(r.namespaceType(st.Type), st))
}

func (r *Repo) namespaceType(typ string) domso.NamespaceType {
	if def, ok := r.types.Get(typ); ok {
		return def.NamespaceType
	}
	return domso.NamespaceSingle
}

// key builds the document key. Single-namespace objects outside the default
// namespace carry the namespace in their raw id.
func (r *Repo) key(typ, id, namespace string) string {
	if r.namespaceType(typ) == domso.NamespaceSingle && namespace != "" && namespace != domso.DefaultNamespace {
		return fmt.Sprintf("%s%s:%s:%s", r.prefix, namespace, typ, id)
	}
	return fmt.Sprintf("%s%s:%s", r.prefix, typ, id)
}

func (r *Repo) idFromKey(key, typ, namespace string) string {
	rawID := strings.TrimPrefix(key, r.prefix)
	if namespace != "" {
		rawID = strings.TrimPrefix(rawID, namespace+":")
	}
	return strings.TrimPrefix(rawID, typ+":")
}

// IndexName is the FT index over the stored documents.
func (r *Repo) IndexName() string {
	return r.prefix + "idx"
}

func readPaths(proj *projection, docType string) []string {
	if proj == nil {
		return []string{"$"}
	}
	return proj.jsonPaths(docType)
}

// firstDocument unwraps the single-element array returned by JSON.GET $.
func firstDocument(raw []byte) ([]byte, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if len(docs) == 0 {
		return nil, domain.ErrObjectNotFound
	}
	return docs[0], nil
}

func unquote(s string) string {
	var v string
	if json.Unmarshal([]byte(s), &v) == nil {
		return v
	}
	return s
}
