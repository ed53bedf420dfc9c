package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/savedobjects/internal/domain"
	domsearch "github.com/kailas-cloud/savedobjects/internal/domain/search"
)

// Async runs an inner strategy in the background. The first call waits up to
// wait_for_completion_ms and otherwise returns a running response with an id;
// later calls with that id poll for the outcome.
type Async struct {
	inner    Strategy
	sessions SessionStore
	wait     time.Duration
	ttl      time.Duration
	logger   *zap.Logger
	newID    func() string

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	runs   map[string]*run
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	// set before done is closed
	resp domsearch.Response
	err  error
}

// NewAsync wraps inner. Completed outcomes are kept in sessions for ttl.
func NewAsync(inner Strategy, sessions SessionStore, wait, ttl time.Duration) *Async {
	ctx, stop := context.WithCancel(context.Background())
	return &Async{
		inner:    inner,
		sessions: sessions,
		wait:     wait,
		ttl:      ttl,
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
		ctx:      ctx,
		stop:     stop,
		runs:     make(map[string]*run),
	}
}

// WithLogger sets the logger for background failures.
func (a *Async) WithLogger(l *zap.Logger) *Async {
	if l != nil {
		a.logger = l
	}
	return a
}

// Search implements Strategy.
func (a *Async) Search(ctx context.Context, req domsearch.Request) (domsearch.Response, error) {
	waitMS := intParam(req.Params, "wait_for_completion_ms", int(a.wait/time.Millisecond))
	wait := time.Duration(waitMS) * time.Millisecond
	if req.ID != "" {
		return a.poll(ctx, req.ID, wait)
	}
	return a.start(ctx, req, wait)
}

// Cancel implements Canceler: stops a running search and forgets its outcome.
func (a *Async) Cancel(ctx context.Context, id string) error {
	a.mu.Lock()
	r, running := a.runs[id]
	a.mu.Unlock()

	if running {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if _, err := a.sessions.Load(ctx, id); err != nil {
		return err
	}
	return a.sessions.Delete(ctx, id)
}

// Close cancels all running searches and waits for them to exit.
func (a *Async) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.stop()
	a.wg.Wait()
}

func (a *Async) start(ctx context.Context, req domsearch.Request, wait time.Duration) (domsearch.Response, error) {
	id := a.newID()
	runCtx, cancel := context.WithCancel(a.ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		cancel()
		return domsearch.Response{}, domsearch.NewError(http.StatusServiceUnavailable,
			"async search is shutting down", "")
	}
	a.runs[id] = r
	a.wg.Add(1)
	a.mu.Unlock()

	go a.execute(runCtx, id, r, req)
	return a.await(ctx, id, r, wait)
}

func (a *Async) execute(ctx context.Context, id string, r *run, req domsearch.Request) {
	defer a.wg.Done()
	defer r.cancel()

	req.ID = ""
	resp, err := a.inner.Search(ctx, req)
	resp.ID = id
	r.resp, r.err = resp, err

	if ctx.Err() == nil {
		sess := domsearch.Session{Response: resp}
		if err != nil {
			sess.Err = asSearchError(err)
		}
		if saveErr := a.sessions.Save(ctx, id, sess, a.ttl); saveErr != nil {
			a.logger.Warn("async search result not persisted",
				zap.String("search_id", id),
				zap.Error(saveErr),
			)
		}
	}

	a.mu.Lock()
	delete(a.runs, id)
	a.mu.Unlock()
	close(r.done)
}

func (a *Async) await(ctx context.Context, id string, r *run, wait time.Duration) (domsearch.Response, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-r.done:
		if r.err != nil {
			if errors.Is(r.err, context.Canceled) {
				return domsearch.Response{}, fmt.Errorf("%s: %w", id, domain.ErrSearchSessionNotFound)
			}
			return domsearch.Response{}, r.err
		}
		return r.resp, nil
	case <-timer.C:
		return domsearch.Response{ID: id, IsRunning: true, IsPartial: true}, nil
	case <-ctx.Done():
		return domsearch.Response{}, ctx.Err()
	}
}

func (a *Async) poll(ctx context.Context, id string, wait time.Duration) (domsearch.Response, error) {
	a.mu.Lock()
	r, running := a.runs[id]
	a.mu.Unlock()
	if running {
		return a.await(ctx, id, r, wait)
	}

	sess, err := a.sessions.Load(ctx, id)
	if err != nil {
		return domsearch.Response{}, err
	}
	if sess.Err != nil {
		return domsearch.Response{}, sess.Err
	}
	return sess.Response, nil
}

func asSearchError(err error) *domsearch.Error {
	var se *domsearch.Error
	if errors.As(err, &se) {
		return se
	}
	return domsearch.NewError(http.StatusInternalServerError, "search failed", "")
}
