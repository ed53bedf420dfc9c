package savedobject

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/savedobjects/internal/db"
	domso "github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/registry"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	jsonSetNXFn    func(ctx context.Context, key string, data []byte) (bool, error)
	jsonCASFn      func(ctx context.Context, key, path string, expected, data []byte) (bool, error)
	jsonGetFn      func(ctx context.Context, key string, paths ...string) ([]byte, error)
	jsonGetMultiFn func(ctx context.Context, reqs []db.JSONGetRequest) ([][]byte, error)
	delFn          func(ctx context.Context, key string) error
	existsFn       func(ctx context.Context, key string) (bool, error)
	searchListFn   func(
		ctx context.Context, index, query string, offset, limit int, fields []string,
	) (*db.SearchResult, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
}

func (m *mockStore) JSONSetNX(ctx context.Context, key string, data []byte) (bool, error) {
	if m.jsonSetNXFn != nil {
		return m.jsonSetNXFn(ctx, key, data)
	}
	return true, nil
}

func (m *mockStore) JSONCompareAndSet(ctx context.Context, key, path string, expected, data []byte) (bool, error) {
	if m.jsonCASFn != nil {
		return m.jsonCASFn(ctx, key, path, expected, data)
	}
	return true, nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) JSONGetMulti(ctx context.Context, reqs []db.JSONGetRequest) ([][]byte, error) {
	if m.jsonGetMultiFn != nil {
		return m.jsonGetMultiFn(ctx, reqs)
	}
	return make([][]byte, len(reqs)), nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) SearchList(
	ctx context.Context, index, query string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	if m.searchListFn != nil {
		return m.searchListFn(ctx, index, query, offset, limit, fields)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	types, err := registry.New([]registry.TypeDef{
		{Name: "config", NamespaceType: domso.NamespaceSingle},
		{Name: "dashboard", NamespaceType: domso.NamespaceSingle},
		{Name: "index-pattern", NamespaceType: domso.NamespaceMultiple},
		{Name: "ui-metric", NamespaceType: domso.NamespaceAgnostic},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	ms := &mockStore{}
	repo := New(ms, types, "so:").WithClock(func() time.Time { return testNow })
	return repo, ms
}

func testObject(t *testing.T, typ, id string, attrs map[string]any, opts ...domso.Option) domso.SavedObject {
	t.Helper()
	obj, err := domso.New(typ, id, attrs, opts...)
	if err != nil {
		t.Fatalf("new saved object: %v", err)
	}
	return obj
}
