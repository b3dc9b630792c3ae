package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"cashtimachann/internal/core"
	applog "cashtimachann/internal/log"
)

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := s.Seal("tok-123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == "tok-123" {
		t.Fatal("token stored in clear")
	}
	got, err := s.Open(sealed)
	if err != nil || got != "tok-123" {
		t.Fatalf("Open = %q, %v", got, err)
	}

	other, _ := NewSealer("another-secret-another-secret-xx")
	if _, err := other.Open(sealed); !errors.Is(err, ErrBadSeal) {
		t.Fatalf("foreign key should fail, got %v", err)
	}
	if _, err := s.Open("short"); !errors.Is(err, ErrBadSeal) {
		t.Fatalf("garbage should fail, got %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	sess := &Session{ID: "abc", UserID: "7", Role: core.RoleAgent, Email: "a@b.ht"}
	if err := store.Save(ctx, sess, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !mr.Exists(redisKeyPrefix + "abc") {
		t.Fatal("expected prefixed key in redis")
	}

	got, err := store.Get(ctx, "abc")
	if err != nil || got.Role != core.RoleAgent || got.UserID != "7" {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session = %v", err)
	}

	_ = store.Save(ctx, sess, time.Minute)
	if err := store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted session = %v", err)
	}
}

func newTestManager(t *testing.T, now *time.Time) *Manager {
	t.Helper()
	sealer, err := NewSealer("")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	m := NewManager(NewMemoryStore(10), sealer, Options{
		TTL:               time.Hour,
		InactivityTimeout: 10 * time.Minute,
		LogoutGrace:       30 * time.Second,
	}, applog.Discard())
	return m.WithClock(func() time.Time { return *now })
}

func requestWithCookie(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/dashboard/client", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestManagerLifecycle(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, &now)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	user := core.User{ID: "2", Email: "client@cashtimachann.ht", FirstName: "Jan", LastName: "Pyè", UserType: core.RoleClient}
	created, err := m.Create(ctx, rec, "api-token", user, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	req := requestWithCookie(rec)

	sess, err := m.Load(ctx, req)
	if err != nil || sess.ID != created.ID || sess.Role != core.RoleClient {
		t.Fatalf("Load = %+v, %v", sess, err)
	}
	tok, err := m.Token(sess)
	if err != nil || tok != "api-token" {
		t.Fatalf("Token = %q, %v", tok, err)
	}

	out := httptest.NewRecorder()
	if err := m.Destroy(ctx, out, req); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := m.Load(ctx, req); !errors.Is(err, ErrNotFound) {
		t.Fatalf("destroyed session = %v", err)
	}
	if c := out.Result().Cookies(); len(c) != 1 || c[0].MaxAge != -1 {
		t.Fatalf("cookie not cleared: %+v", c)
	}
}

func TestManagerInactivity(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, &now)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	if _, err := m.Create(ctx, rec, "tok", core.User{ID: "2", UserType: core.RoleClient}, false); err != nil {
		t.Fatalf("Create: %v", err)
	}
	req := requestWithCookie(rec)

	tests := []struct {
		name     string
		advance  time.Duration
		wantWarn bool
		wantLeft int
	}{
		{"fresh", time.Minute, false, 570},
		{"warning window", 9 * time.Minute, true, 30},
		{"last seconds", 20 * time.Second, true, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = now.Add(tt.advance)
			sess, err := m.Load(ctx, req)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			st := m.Status(sess)
			if st.Warn != tt.wantWarn || st.SecondsLeft != tt.wantLeft {
				t.Errorf("Status = %+v, want warn=%v left=%d", st, tt.wantWarn, tt.wantLeft)
			}
		})
	}

	sess, _ := m.Load(ctx, req)
	if err := m.Touch(ctx, sess); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if st := m.Status(sess); st.Warn || st.SecondsLeft != 630 {
		t.Fatalf("after keepalive Status = %+v", st)
	}

	now = now.Add(10*time.Minute + 30*time.Second)
	if _, err := m.Load(ctx, req); !errors.Is(err, ErrExpired) {
		t.Fatalf("idle session = %v, want ErrExpired", err)
	}
	if _, err := m.Load(ctx, req); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session should be deleted, got %v", err)
	}
}
