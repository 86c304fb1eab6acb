package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	aside "github.com/eugener/aside/internal"
	"github.com/eugener/aside/internal/engine"
	"github.com/eugener/aside/internal/testutil"
)

type testEnv struct {
	h     http.Handler
	store *testutil.FakeStore
	res   *testutil.FakeResolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewFakeStore()
	res := &testutil.FakeResolver{Data: json.RawMessage(`[{"id":1,"title":"hello"}]`)}
	return &testEnv{
		h: New(Deps{
			Engine:     engine.New(store, res),
			DefaultTTL: 60,
		}),
		store: store,
		res:   res,
	}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

type fetchBody struct {
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRoot(t *testing.T) {
	t.Parallel()
	rec := newTestEnv(t).do(http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "aside cache gateway is running") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := newTestEnv(t).do(http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	var fail error
	h := New(Deps{
		Engine:     engine.New(testutil.NewFakeStore(), nil),
		DefaultTTL: 60,
		ReadyCheck: func(context.Context) error { return fail },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	fail = errors.New("redis: connection refused")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestFetch_FreshThenCached(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/cache/posts?ttl=60", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
	first := decode[fetchBody](t, rec)
	if first.Source != "fresh" {
		t.Errorf("source = %q, want fresh", first.Source)
	}

	rec = env.do(http.MethodGet, "/v1/cache/posts?ttl=60", "")
	second := decode[fetchBody](t, rec)
	if second.Source != "cache" {
		t.Errorf("source = %q, want cache", second.Source)
	}
	if string(second.Data) != `[{"id":1,"title":"hello"}]` {
		t.Errorf("data = %s", second.Data)
	}
	if env.res.Calls() != 1 {
		t.Errorf("resolver calls = %d, want 1", env.res.Calls())
	}
}

func TestFetch_DefaultTTL(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	if rec := env.do(http.MethodGet, "/v1/cache/posts", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ttl := env.store.TTL("posts"); ttl != 60*time.Second {
		t.Errorf("ttl = %v, want default 60s", ttl)
	}
}

func TestFetch_InvalidTTL(t *testing.T) {
	t.Parallel()

	for _, q := range []string{"ttl=0", "ttl=-1", "ttl=abc", "ttl="} {
		t.Run(q, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			rec := env.do(http.MethodGet, "/v1/cache/posts?"+q, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			body := decode[apiError](t, rec)
			if body.Kind != aside.KindInvalidRequest {
				t.Errorf("kind = %q", body.Kind)
			}
			if len(env.store.Calls()) != 0 {
				t.Error("store must not be touched")
			}
		})
	}
}

func TestFetch_KeyWithSlash(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	if rec := env.do(http.MethodGet, "/v1/cache/posts/1?ttl=5", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if keys := env.res.Keys(); len(keys) != 1 || keys[0] != "posts/1" {
		t.Errorf("resolved keys = %v, want [posts/1]", keys)
	}

	if rec := env.do(http.MethodGet, "/v1/cache/a%2Fb?ttl=5", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if keys := env.res.Keys(); keys[1] != "a/b" {
		t.Errorf("escaped key = %q, want a/b", keys[1])
	}
}

func TestFetch_EmptyKey(t *testing.T) {
	t.Parallel()
	rec := newTestEnv(t).do(http.MethodGet, "/v1/cache/", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStore_CallerSupplied(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/cache/k1?ttl=30", `{"x":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	got := decode[fetchBody](t, rec)
	if got.Source != "fresh" || string(got.Data) != `{"x":1}` {
		t.Errorf("got %s %s", got.Source, got.Data)
	}
	if env.store.TTL("k1") != 30*time.Second {
		t.Errorf("ttl = %v", env.store.TTL("k1"))
	}
	if env.res.Calls() != 0 {
		t.Error("resolver must not be called for caller-supplied values")
	}

	rec = env.do(http.MethodPost, "/v1/cache/k1?ttl=30", `{"x":2}`)
	got = decode[fetchBody](t, rec)
	if got.Source != "cache" || string(got.Data) != `{"x":1}` {
		t.Errorf("second = %s %s, want cached {\"x\":1}", got.Source, got.Data)
	}
}

func TestStore_InvalidBody(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"not json": `{x:1}`,
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			rec := env.do(http.MethodPost, "/v1/cache/k1?ttl=30", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if len(env.store.Mutations()) != 0 {
				t.Error("store must not be mutated")
			}
		})
	}
}

func TestStore_BodyTooLarge(t *testing.T) {
	t.Parallel()

	h := New(Deps{Engine: engine.New(testutil.NewFakeStore(), nil), DefaultTTL: 60, MaxBodyBytes: 8})
	req := httptest.NewRequest(http.MethodPost, "/v1/cache/k", strings.NewReader(`{"a":"0123456789"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestInvalidate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.do(http.MethodPost, "/v1/cache/k1?ttl=30", `{"x":1}`)

	rec := env.do(http.MethodDelete, "/v1/cache/k1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"success":true,"data":{"key":"k1"}}` {
		t.Errorf("body = %s", got)
	}

	rec = env.do(http.MethodDelete, "/v1/cache/k1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"success":false,"message":"not found"}` {
		t.Errorf("body = %s", got)
	}

	rec = env.do(http.MethodPost, "/v1/cache/k1?ttl=30", `{"x":2}`)
	if got := decode[fetchBody](t, rec); got.Source != "fresh" {
		t.Errorf("after invalidate source = %q, want fresh", got.Source)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(*testEnv)
		method   string
		wantCode int
		wantKind string
	}{
		{
			name:     "upstream failure",
			setup:    func(e *testEnv) { e.res.Err = errors.New("connection refused") },
			method:   http.MethodGet,
			wantCode: http.StatusBadGateway,
			wantKind: aside.KindUpstreamFailure,
		},
		{
			name:     "store unavailable on get",
			setup:    func(e *testEnv) { e.store.GetErr = errors.New("dial tcp: i/o timeout") },
			method:   http.MethodGet,
			wantCode: http.StatusServiceUnavailable,
			wantKind: aside.KindStoreUnavailable,
		},
		{
			name:     "store unavailable on delete",
			setup:    func(e *testEnv) { e.store.DeleteErr = errors.New("dial tcp: i/o timeout") },
			method:   http.MethodDelete,
			wantCode: http.StatusServiceUnavailable,
			wantKind: aside.KindStoreUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			tt.setup(env)
			rec := env.do(tt.method, "/v1/cache/posts?ttl=60", "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			body := decode[apiError](t, rec)
			if body.Kind != tt.wantKind || body.Error == "" {
				t.Errorf("body = %+v, want kind %q", body, tt.wantKind)
			}
		})
	}
}

func TestPopulationWarningHeader(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.store.SetErr = errors.New("READONLY")

	rec := env.do(http.MethodGet, "/v1/cache/posts?ttl=60", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Cache-Warning"); got != "population_failed" {
		t.Errorf("X-Cache-Warning = %q", got)
	}
	if got := decode[fetchBody](t, rec); got.Source != "fresh" {
		t.Errorf("source = %q", got.Source)
	}
}

// panicEngine panics on every call.
type panicEngine struct{}

func (panicEngine) Fetch(context.Context, aside.FetchRequest) (*aside.FetchResult, error) {
	panic("boom")
}

func (panicEngine) Invalidate(context.Context, string) (aside.InvalidateResult, error) {
	panic("boom")
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	h := New(Deps{Engine: panicEngine{}, DefaultTTL: 60})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cache/k", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decode[apiError](t, rec); body.Kind != aside.KindInternal {
		t.Errorf("kind = %q", body.Kind)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	h := newTestEnv(t).h

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected a generated X-Request-Id")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "caller-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "caller-id" {
		t.Errorf("X-Request-Id = %q, want caller-id", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); len(got) > maxRequestIDLen {
		t.Error("oversized request id should be replaced")
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	h := New(Deps{
		Engine:      engine.New(testutil.NewFakeStore(), nil),
		DefaultTTL:  60,
		CORSOrigins: []string{"https://app.example.com"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/cache/k", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin = %q, want empty for unlisted origin", got)
	}
}
