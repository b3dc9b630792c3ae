package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	applog "cashtimachann/internal/log"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return map[string]Store{
		"redis":  NewRedisStore(client),
		"memory": NewMemoryStore(100),
	}
}

func post(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/payments/transfer", strings.NewReader("amount=100"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequiresKey(t *testing.T) {
	m := New(NewMemoryStore(10), time.Minute, nil, applog.Discard())
	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a key")
	}))
	if rr := post(h, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	get := httptest.NewRecorder()
	passed := false
	m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { passed = true })).
		ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/", nil))
	if !passed {
		t.Fatal("GET should bypass the middleware")
	}
}

func TestReplaysStoredResponse(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var calls int32
			m := New(store, time.Minute, nil, applog.Discard())
			h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("HX-Trigger", `{"payment:done":{}}`)
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`<div class="success">TXN-1</div>`))
			}))

			first := post(h, "k-"+name)
			second := post(h, "k-"+name)
			if calls != 1 {
				t.Fatalf("handler ran %d times, want 1", calls)
			}
			if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
				t.Fatalf("replay = %d %q, want %d %q", second.Code, second.Body.String(), first.Code, first.Body.String())
			}
			if second.Header().Get("HX-Trigger") == "" || second.Header().Get("Idempotent-Replayed") != "true" {
				t.Errorf("replay headers = %v", second.Header())
			}

			post(h, "other-"+name)
			if calls != 2 {
				t.Errorf("a new key should run the handler, calls = %d", calls)
			}
		})
	}
}

func TestInProgressConflicts(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Reserve(context.Background(), keyPrefix+"busy", inProgressMarker, time.Minute); err != nil {
				t.Fatalf("Reserve: %v", err)
			}
			m := New(store, time.Minute, nil, applog.Discard())
			h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run while the key is reserved")
			}))
			if rr := post(h, "busy"); rr.Code != http.StatusConflict {
				t.Fatalf("status = %d, want 409", rr.Code)
			}
		})
	}
}

func TestServerErrorReleasesKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			fail := true
			m := New(store, time.Minute, nil, applog.Discard())
			h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if fail {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))

			if rr := post(h, "retry"); rr.Code != http.StatusBadGateway {
				t.Fatalf("first status = %d", rr.Code)
			}
			fail = false
			if rr := post(h, "retry"); rr.Code != http.StatusOK || rr.Header().Get("Idempotent-Replayed") != "" {
				t.Fatalf("retry should run the handler again, got %d", rr.Code)
			}
		})
	}
}

func TestKeysAreScoped(t *testing.T) {
	var calls int32
	scope := func(r *http.Request) string { return r.Header.Get("X-Test-Session") }
	m := New(NewMemoryStore(10), time.Minute, scope, applog.Discard())
	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { atomic.AddInt32(&calls, 1) }))

	for _, sess := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(HeaderKey, "same")
		req.Header.Set("X-Test-Session", sess)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want one per session", calls)
	}
}

func TestRequestKeyFromForm(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(FormField+"=abc&amount=5"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if got := RequestKey(req); got != "abc" {
		t.Fatalf("RequestKey = %q", got)
	}
	if req.PostFormValue("amount") != "5" {
		t.Fatal("form must stay readable for the handler")
	}
}
