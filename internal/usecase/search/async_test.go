package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/kailas-cloud/savedobjects/internal/domain"
	domsearch "github.com/kailas-cloud/savedobjects/internal/domain/search"
)

func newTestAsync(t *testing.T, inner Strategy, sessions *memSessions) *Async {
	t.Helper()
	a := NewAsync(inner, sessions, 2*time.Second, time.Minute).WithLogger(zaptest.NewLogger(t))
	a.newID = func() string { return "sess-1" }
	return a
}

func blockingStrategy(release <-chan struct{}) Strategy {
	return strategyFunc(func(ctx context.Context, _ domsearch.Request) (domsearch.Response, error) {
		select {
		case <-release:
			return domsearch.Response{Total: 1, Loaded: 1, RawResponse: map[string]any{"took": 1}}, nil
		case <-ctx.Done():
			return domsearch.Response{}, ctx.Err()
		}
	})
}

func TestAsync_CompletesWithinWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	sessions := newMemSessions()
	inner := strategyFunc(func(context.Context, domsearch.Request) (domsearch.Response, error) {
		return domsearch.Response{Total: 1, Loaded: 1}, nil
	})
	a := newTestAsync(t, inner, sessions)
	defer a.Close()

	resp, err := a.Search(context.Background(), domsearch.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID != "sess-1" || resp.IsRunning {
		t.Errorf("resp = %+v", resp)
	}
	if !sessions.has("sess-1") {
		t.Error("expected completed session to be stored")
	}
}

func TestAsync_RunningThenPolled(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	sessions := newMemSessions()
	a := newTestAsync(t, blockingStrategy(release), sessions)
	defer a.Close()

	resp, err := a.Search(context.Background(), domsearch.Request{
		Params: map[string]any{"wait_for_completion_ms": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsRunning || !resp.IsPartial || resp.ID != "sess-1" {
		t.Fatalf("expected running response, got %+v", resp)
	}

	close(release)
	polled, err := a.Search(context.Background(), domsearch.Request{
		ID:     "sess-1",
		Params: map[string]any{"wait_for_completion_ms": 5000},
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if polled.IsRunning || polled.Loaded != 1 || polled.ID != "sess-1" {
		t.Errorf("polled = %+v", polled)
	}

	// after completion the outcome comes from the store
	again, err := a.Search(context.Background(), domsearch.Request{ID: "sess-1"})
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if again.Loaded != 1 {
		t.Errorf("second poll = %+v", again)
	}
}

func TestAsync_StoredError(t *testing.T) {
	defer goleak.VerifyNone(t)

	sessions := newMemSessions()
	inner := strategyFunc(func(context.Context, domsearch.Request) (domsearch.Response, error) {
		return domsearch.Response{}, domsearch.NewError(400, "bad query", "parse_exception")
	})
	a := newTestAsync(t, inner, sessions)
	defer a.Close()

	if _, err := a.Search(context.Background(), domsearch.Request{}); err == nil {
		t.Fatal("expected error from first call")
	}
	_, err := a.Search(context.Background(), domsearch.Request{ID: "sess-1"})
	var se *domsearch.Error
	if !errors.As(err, &se) || se.Status() != 400 || se.ErrorReason() != "parse_exception" {
		t.Fatalf("expected stored 400 error, got %v", err)
	}
}

func TestAsync_UnknownID(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := newTestAsync(t, blockingStrategy(nil), newMemSessions())
	defer a.Close()

	_, err := a.Search(context.Background(), domsearch.Request{ID: "nope"})
	if !errors.Is(err, domain.ErrSearchSessionNotFound) {
		t.Fatalf("expected ErrSearchSessionNotFound, got %v", err)
	}
	if err := a.Cancel(context.Background(), "nope"); !errors.Is(err, domain.ErrSearchSessionNotFound) {
		t.Fatalf("cancel: expected ErrSearchSessionNotFound, got %v", err)
	}
}

func TestAsync_CancelRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	sessions := newMemSessions()
	a := newTestAsync(t, blockingStrategy(nil), sessions)
	defer a.Close()

	resp, err := a.Search(context.Background(), domsearch.Request{
		Params: map[string]any{"wait_for_completion_ms": 1},
	})
	if err != nil || !resp.IsRunning {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}

	if err := a.Cancel(context.Background(), resp.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sessions.has(resp.ID) {
		t.Error("canceled search must not leave a session")
	}
	if _, err := a.Search(context.Background(), domsearch.Request{ID: resp.ID}); !errors.Is(err, domain.ErrSearchSessionNotFound) {
		t.Fatalf("expected not found after cancel, got %v", err)
	}
}

func TestAsync_CancelCompleted(t *testing.T) {
	defer goleak.VerifyNone(t)

	sessions := newMemSessions()
	inner := strategyFunc(func(context.Context, domsearch.Request) (domsearch.Response, error) {
		return domsearch.Response{Loaded: 1, Total: 1}, nil
	})
	a := newTestAsync(t, inner, sessions)
	defer a.Close()

	if _, err := a.Search(context.Background(), domsearch.Request{}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := a.Cancel(context.Background(), "sess-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sessions.has("sess-1") {
		t.Error("expected session to be deleted")
	}
}

func TestAsync_CloseStopsRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	sessions := newMemSessions()
	a := newTestAsync(t, blockingStrategy(nil), sessions)

	resp, err := a.Search(context.Background(), domsearch.Request{
		Params: map[string]any{"wait_for_completion_ms": 1},
	})
	if err != nil || !resp.IsRunning {
		t.Fatalf("resp = %+v, err = %v", resp, err)
	}

	a.Close()
	if sessions.has(resp.ID) {
		t.Error("interrupted search must not be stored")
	}

	_, err = a.Search(context.Background(), domsearch.Request{})
	var se *domsearch.Error
	if !errors.As(err, &se) || se.Status() != 503 {
		t.Fatalf("expected 503 after close, got %v", err)
	}
}

func TestAsync_CallerContextDoesNotStopRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	sessions := newMemSessions()
	a := newTestAsync(t, blockingStrategy(release), sessions)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Search(ctx, domsearch.Request{
		Params: map[string]any{"wait_for_completion_ms": 5000},
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller cancellation, got %v", err)
	}

	close(release)
	resp, err := a.Search(context.Background(), domsearch.Request{
		ID:     "sess-1",
		Params: map[string]any{"wait_for_completion_ms": 5000},
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if resp.Loaded != 1 {
		t.Errorf("resp = %+v", resp)
	}
}
