// Package search routes search requests to named strategies.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/savedobjects/internal/domain"
	domsearch "github.com/kailas-cloud/savedobjects/internal/domain/search"
	"github.com/kailas-cloud/savedobjects/internal/metrics"
)

// Registry holds the available strategies by name. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds or replaces a strategy.
func (r *Registry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = s
}

// Get returns the named strategy.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrStrategyNotFound)
	}
	return s, nil
}

// Search runs req with the named strategy.
func (r *Registry) Search(ctx context.Context, name string, req domsearch.Request) (domsearch.Response, error) {
	s, err := r.Get(name)
	if err != nil {
		return domsearch.Response{}, err
	}

	start := time.Now()
	resp, err := s.Search(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())
	return resp, err
}

// Cancel stops search id on the named strategy. Strategies that cannot cancel
// accept the call as a no-op.
func (r *Registry) Cancel(ctx context.Context, name, id string) error {
	s, err := r.Get(name)
	if err != nil {
		return err
	}
	c, ok := s.(Canceler)
	if !ok {
		return nil
	}
	return c.Cancel(ctx, id)
}
