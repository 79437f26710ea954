package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/tradebook/internal/usecase"
	"github.com/iho/tradebook/internal/usecase/mocks"
)

func TestIdempotencyMiddleware_FailsClosedOnStoreErrors(t *testing.T) {
	var called bool
	store := mocks.NewMockIdempotencyStore()
	store.CheckAndSetFunc = func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
		return false, nil, context.DeadlineExceeded
	}
	mw := NewIdempotencyMiddleware(store, time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBufferString(`{}`))
	req.Header.Set(IdempotencyKeyHeader, "key-err")
	rr := httptest.NewRecorder()

	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rr, req)

	if called {
		t.Fatalf("handler should not be called when store errors")
	}

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestIdempotencyMiddleware_ReleasesFailedResponses(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	var released string
	store.ReleaseFunc = func(ctx context.Context, key string) error {
		released = key
		return nil
	}
	store.UpdateFunc = func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
		t.Fatalf("expected error responses not to be cached")
		return nil
	}
	mw := NewIdempotencyMiddleware(store, time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBufferString(`{}`))
	req.Header.Set(IdempotencyKeyHeader, "key-fail")
	rr := httptest.NewRecorder()

	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})).ServeHTTP(rr, req)

	if released != "POST /api/v1/payments key-fail" {
		t.Fatalf("expected the scoped key to be released, got %q", released)
	}
}

func TestIdempotencyMiddleware_SkipsNonMutatingRequests(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	store.CheckAndSetFunc = func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
		t.Fatalf("store should not be consulted for GET")
		return false, nil, nil
	}
	mw := NewIdempotencyMiddleware(store, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	req.Header.Set(IdempotencyKeyHeader, "key-get")
	rr := httptest.NewRecorder()

	called := false
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rr, req)

	if !called {
		t.Fatalf("expected next handler to be called")
	}
}

func TestIdempotencyMiddleware_ReplaysStoredResponse(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, 0)

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"payment_id":"SP00001"}`))
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBufferString(`{}`))
		req.Header.Set(IdempotencyKeyHeader, "key-123")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, rr.Code)
		}
		if got := rr.Body.String(); got != `{"payment_id":"SP00001"}` {
			t.Fatalf("request %d: unexpected body %s", i, got)
		}
		if replayed := rr.Header().Get(IdempotencyReplayHeader) == "true"; replayed != (i == 1) {
			t.Fatalf("request %d: unexpected replay header %v", i, replayed)
		}
	}

	if calls != 1 {
		t.Fatalf("expected the handler to run once, ran %d times", calls)
	}
}

func TestIdempotencyMiddleware_ScopesKeysByEndpoint(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Hour)

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, path := range []string{"/api/v1/entries", "/api/v1/payments"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(IdempotencyKeyHeader, "shared")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Fatalf("expected both endpoints to run, got %d calls", calls)
	}
}

func TestIdempotencyMiddleware_RejectsInProgressKey(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	store.CheckAndSetFunc = func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
		return true, []byte(usecase.IdempotencyPending), nil
	}
	mw := NewIdempotencyMiddleware(store, time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	req.Header.Set(IdempotencyKeyHeader, "busy")
	rr := httptest.NewRecorder()

	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run while the key is in progress")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "in progress") {
		t.Fatalf("expected 409, got %d %s", rr.Code, rr.Body.String())
	}
}

// ctxStore fails writes on a done context, as a network store would.
type ctxStore struct {
	*mocks.MockIdempotencyStore
}

func (s ctxStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MockIdempotencyStore.Update(ctx, key, response, ttl)
}

func (s ctxStore) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MockIdempotencyStore.Release(ctx, key)
}

func TestIdempotencyMiddleware_StoresResponseAfterClientLeaves(t *testing.T) {
	mw := NewIdempotencyMiddleware(ctxStore{mocks.NewMockIdempotencyStore()}, time.Hour)

	calls := 0
	var cancel context.CancelFunc
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"payment_id":"SP00002"}`))
		if cancel != nil {
			cancel()
		}
	}))

	ctx, c := context.WithCancel(context.Background())
	cancel = c
	first := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil).WithContext(ctx)
	first.Header.Set(IdempotencyKeyHeader, "gone")
	handler.ServeHTTP(httptest.NewRecorder(), first)
	cancel = nil

	retry := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
	retry.Header.Set(IdempotencyKeyHeader, "gone")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, retry)

	if rr.Code != http.StatusCreated || rr.Header().Get(IdempotencyReplayHeader) != "true" {
		t.Fatalf("expected a replayed 201, got %d %s", rr.Code, rr.Body.String())
	}
	if calls != 1 {
		t.Fatalf("expected the handler to run once, ran %d times", calls)
	}
}

func TestIdempotencyMiddleware_ReleasesKeyOnPanic(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Hour)

	calls := 0
	handler := Recovery(zerolog.Nop())(mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	})))

	for i, want := range []int{http.StatusInternalServerError, http.StatusCreated} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
		req.Header.Set(IdempotencyKeyHeader, "panics")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != want {
			t.Fatalf("request %d: expected %d, got %d %s", i, want, rr.Code, rr.Body.String())
		}
	}

	if calls != 2 {
		t.Fatalf("expected the retry to reach the handler, calls=%d", calls)
	}
}
