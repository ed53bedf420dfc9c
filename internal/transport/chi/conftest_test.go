package chi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kailas-cloud/savedobjects/internal/domain"
	"github.com/kailas-cloud/savedobjects/internal/domain/batch"
	domso "github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/registry"
	domsearch "github.com/kailas-cloud/savedobjects/internal/domain/search"
	healthuc "github.com/kailas-cloud/savedobjects/internal/usecase/health"
	objectuc "github.com/kailas-cloud/savedobjects/internal/usecase/savedobject"
	searchuc "github.com/kailas-cloud/savedobjects/internal/usecase/search"
)

// --- Fakes ---

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// memRepo is an in-memory objectuc.Repository keyed by type/id.
type memRepo struct {
	mu      sync.Mutex
	objects map[string]domso.SavedObject
}

func newMemRepo() *memRepo {
	return &memRepo{objects: make(map[string]domso.SavedObject)}
}

func objKey(typ, id string) string { return typ + "/" + id }

func notFound(typ, id string) error {
	return fmt.Errorf("%s/%s: %w", typ, id, domain.ErrObjectNotFound)
}

func (m *memRepo) Create(_ context.Context, obj domso.SavedObject, overwrite bool) (domso.SavedObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := obj.State()
	st.UpdatedAt = fixedNow
	st.Version = 1
	if cur, ok := m.objects[objKey(st.Type, st.ID)]; ok {
		if !overwrite {
			return domso.SavedObject{}, fmt.Errorf("%s/%s: %w", st.Type, st.ID, domain.ErrAlreadyExists)
		}
		st.Version = cur.Version() + 1
	}
	stored := domso.Reconstruct(st)
	m.objects[objKey(st.Type, st.ID)] = stored
	return stored, nil
}

func (m *memRepo) Get(_ context.Context, _, typ, id string, flds fields.Selector) (domso.SavedObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[objKey(typ, id)]
	if !ok {
		return domso.SavedObject{}, notFound(typ, id)
	}
	if flds == nil {
		return obj, nil
	}
	st := obj.State()
	attrs := map[string]any{}
	for _, f := range flds {
		if v, ok := st.Attributes[f]; ok {
			attrs[f] = v
		}
	}
	st.Attributes = attrs
	return domso.Reconstruct(st), nil
}

func (m *memRepo) BulkGet(
	ctx context.Context, ns string, reqs []domso.GetRequest,
) ([]batch.Result[domso.SavedObject], error) {
	out := make([]batch.Result[domso.SavedObject], len(reqs))
	for i, req := range reqs {
		obj, err := m.Get(ctx, ns, req.Type, req.ID, req.Fields)
		if err != nil {
			out[i] = batch.NewError[domso.SavedObject](req.Type, req.ID, err)
			continue
		}
		out[i] = batch.NewOK(req.Type, req.ID, obj)
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, _, typ, id string, upd domso.Update) (domso.SavedObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[objKey(typ, id)]
	if !ok {
		return domso.SavedObject{}, notFound(typ, id)
	}
	st := obj.State()
	if upd.Version != 0 && upd.Version != st.Version {
		return domso.SavedObject{}, domain.NewRevisionConflict(st.Version)
	}
	for k, v := range upd.Attributes {
		st.Attributes[k] = v
	}
	if upd.References != nil {
		st.References = upd.References
	}
	st.Version++
	stored := domso.Reconstruct(st)
	m.objects[objKey(typ, id)] = stored
	return stored, nil
}

func (m *memRepo) Delete(_ context.Context, _, typ, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[objKey(typ, id)]; !ok {
		return notFound(typ, id)
	}
	delete(m.objects, objKey(typ, id))
	return nil
}

func (m *memRepo) Find(_ context.Context, q domso.FindQuery) (domso.FindResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k, o := range m.objects {
		if q.Types != nil && !slices.Contains(q.Types, o.Type()) {
			continue
		}
		if slices.Contains(q.ExcludeTypes, o.Type()) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := domso.FindResult{Total: len(keys), Page: q.Page, PerPage: q.PerPage}
	start := min((q.Page-1)*q.PerPage, len(keys))
	end := min(start+q.PerPage, len(keys))
	for _, k := range keys[start:end] {
		res.Objects = append(res.Objects, m.objects[k])
	}
	return res, nil
}

type strategyFunc func(ctx context.Context, req domsearch.Request) (domsearch.Response, error)

func (f strategyFunc) Search(ctx context.Context, req domsearch.Request) (domsearch.Response, error) {
	return f(ctx, req)
}

type cancelableStrategy struct {
	strategyFunc
	cancelErr error
	canceled  []string
}

func (c *cancelableStrategy) Cancel(_ context.Context, id string) error {
	c.canceled = append(c.canceled, id)
	return c.cancelErr
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

// --- Harness ---

type testEnv struct {
	repo     *memRepo
	search   *searchuc.Registry
	pinger   *stubPinger
	handler  http.Handler
	lastReq  domsearch.Request
	canceler *cancelableStrategy
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	types, err := registry.New([]registry.TypeDef{
		{Name: "config", NamespaceType: domso.NamespaceSingle},
		{Name: "dashboard", NamespaceType: domso.NamespaceSingle},
		{Name: "index-pattern", NamespaceType: domso.NamespaceMultiple},
		{Name: "secret", Hidden: true},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	env := &testEnv{repo: newMemRepo(), search: searchuc.NewRegistry(), pinger: &stubPinger{}}
	env.search.Register("echo", strategyFunc(func(_ context.Context, req domsearch.Request) (domsearch.Response, error) {
		env.lastReq = req
		return domsearch.Response{
			ID:     req.ID,
			Total:  1,
			Loaded: 1,
			RawResponse: map[string]any{
				"took": 3,
				"hits": map[string]any{
					"total": map[string]any{"value": 2, "relation": "eq"},
					"hits":  []any{},
				},
			},
			WithLongNumeralsSupport: true,
		}, nil
	}))
	env.search.Register("broken", strategyFunc(func(context.Context, domsearch.Request) (domsearch.Response, error) {
		return domsearch.Response{}, domsearch.NewError(http.StatusBadRequest, "bad query", "parse_exception")
	}))
	env.search.Register("crash", strategyFunc(func(context.Context, domsearch.Request) (domsearch.Response, error) {
		return domsearch.Response{}, errors.New("redis: connection reset")
	}))
	env.canceler = &cancelableStrategy{}
	env.search.Register("async", env.canceler)

	objects := objectuc.New(env.repo, types)
	health := healthuc.New(env.pinger, nil, "")
	srv := NewServer(objects, env.search, health, zaptest.NewLogger(t))
	env.handler = Handler(srv)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader = http.NoBody
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func httptestDo(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, http.NoBody))
	return rr
}
