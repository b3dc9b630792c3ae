// Package idempotency makes money-moving form posts safe to resubmit.
// The first request with a given key runs; later requests with the same
// key get the stored response replayed, or 409 while the first one is
// still running.
package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	applog "cashtimachann/internal/log"
)

const (
	// HeaderKey carries the key on HTMX requests.
	HeaderKey = "Idempotency-Key"
	// FormField carries the key on plain form posts.
	FormField = "idempotency_key"

	keyPrefix        = "idempotency:v1:"
	inProgressMarker = "__in_progress__"
	storeTimeout     = 2 * time.Second
)

// ErrNotFound is returned by Store.Get when no entry exists.
var ErrNotFound = errors.New("idempotency entry not found")

// Store persists reservations and recorded responses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Reserve sets value only when key is absent and reports whether it did.
	Reserve(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Middleware guards unsafe methods. Keys are scoped by scope(r), normally
// the session id, so two users cannot collide.
type Middleware struct {
	store  Store
	ttl    time.Duration
	scope  func(*http.Request) string
	logger *applog.Logger
}

func New(store Store, ttl time.Duration, scope func(*http.Request) string, logger *applog.Logger) *Middleware {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Middleware{
		store:  store,
		ttl:    ttl,
		scope:  scope,
		logger: logger.WithComponent(applog.ComponentSecurity),
	}
}

// RequestKey returns the key sent with r, from the header or the form.
func RequestKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(HeaderKey)); k != "" {
		return k
	}
	return strings.TrimSpace(r.PostFormValue(FormField))
}

func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		key := RequestKey(r)
		if key == "" || len(key) > 128 {
			http.Error(w, "missing Idempotency-Key", http.StatusBadRequest)
			return
		}
		if m.scope != nil {
			key = m.scope(r) + ":" + key
		}
		cacheKey := keyPrefix + key
		logger := applog.FromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
		defer cancel()

		cached, err := m.store.Get(ctx, cacheKey)
		switch {
		case err == nil:
			m.replay(w, r, cached)
			return
		case !errors.Is(err, ErrNotFound):
			logger.ErrorContext(ctx, "Idempotency lookup failed", applog.FieldError, err.Error())
			http.Error(w, "idempotency store failure", http.StatusInternalServerError)
			return
		}

		ok, err := m.store.Reserve(ctx, cacheKey, inProgressMarker, m.ttl)
		if err != nil {
			logger.ErrorContext(ctx, "Idempotency reservation failed", applog.FieldError, err.Error())
			http.Error(w, "idempotency reservation failure", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "duplicate request currently processing", http.StatusConflict)
			return
		}

		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(r.Context()), storeTimeout)
		defer persistCancel()

		// Server failures release the key so the user can retry.
		if rec.status >= http.StatusInternalServerError {
			if err := m.store.Delete(persistCtx, cacheKey); err != nil {
				logger.WarnContext(persistCtx, "Idempotency cleanup failed", applog.FieldError, err.Error())
			}
			return
		}

		stored := storedResponse{Status: rec.status, Body: rec.body.String(), Headers: map[string]string{}}
		for name, values := range w.Header() {
			if len(values) > 0 && !strings.EqualFold(name, "Content-Length") && !strings.EqualFold(name, "Set-Cookie") {
				stored.Headers[name] = values[0]
			}
		}
		payload, err := json.Marshal(stored)
		if err == nil {
			err = m.store.Set(persistCtx, cacheKey, string(payload), m.ttl)
		}
		if err != nil {
			logger.ErrorContext(persistCtx, "Failed to persist idempotent response", applog.FieldError, err.Error())
			_ = m.store.Delete(persistCtx, cacheKey)
		}
	})
}

func (m *Middleware) replay(w http.ResponseWriter, r *http.Request, cached string) {
	if cached == inProgressMarker {
		http.Error(w, "duplicate request currently processing", http.StatusConflict)
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to decode stored idempotent response",
			applog.FieldError, err.Error())
		http.Error(w, "duplicate request", http.StatusConflict)
		return
	}
	for name, value := range stored.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write([]byte(stored.Body))
}

// recorder tees the response so it can be stored.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
