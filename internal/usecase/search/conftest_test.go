package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/savedobjects/internal/db"
	"github.com/kailas-cloud/savedobjects/internal/domain"
	domsearch "github.com/kailas-cloud/savedobjects/internal/domain/search"
)

// --- Mocks ---

type strategyFunc func(ctx context.Context, req domsearch.Request) (domsearch.Response, error)

func (f strategyFunc) Search(ctx context.Context, req domsearch.Request) (domsearch.Response, error) {
	return f(ctx, req)
}

type cancelingStrategy struct {
	strategyFunc
	canceled []string
}

func (c *cancelingStrategy) Cancel(_ context.Context, id string) error {
	c.canceled = append(c.canceled, id)
	return nil
}

type mockSearcher struct {
	gotIndex  string
	gotQuery  string
	gotOffset int
	gotLimit  int
	gotFields []string
	result    *db.SearchResult
	err       error
	counted   bool
}

func (m *mockSearcher) SearchList(
	_ context.Context, index, query string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	m.gotIndex, m.gotQuery, m.gotOffset, m.gotLimit, m.gotFields = index, query, offset, limit, fields
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &db.SearchResult{}, nil
	}
	return m.result, nil
}

func (m *mockSearcher) SearchCount(_ context.Context, index, query string) (int, error) {
	m.gotIndex, m.gotQuery, m.counted = index, query, true
	if m.err != nil {
		return 0, m.err
	}
	if m.result == nil {
		return 0, nil
	}
	return m.result.Total, nil
}

// memSessions is a concurrency-safe SessionStore.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]domsearch.Session
	saveErr  error
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]domsearch.Session)}
}

func (m *memSessions) Save(_ context.Context, id string, s domsearch.Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sessions[id] = s
	return nil
}

func (m *memSessions) Load(_ context.Context, id string) (domsearch.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domsearch.Session{}, fmt.Errorf("%s: %w", id, domain.ErrSearchSessionNotFound)
	}
	return s, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}
