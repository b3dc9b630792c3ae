package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"cashtimachann/internal/core"
	applog "cashtimachann/internal/log"
)

// CookieName is the cookie carrying the session id.
const CookieName = "ctm_session"

// Options tune session lifetime.
type Options struct {
	TTL               time.Duration
	InactivityTimeout time.Duration
	LogoutGrace       time.Duration
	SecureCookies     bool
}

// Status is what the page needs to drive the inactivity warning.
type Status struct {
	Warn        bool `json:"warn"`
	SecondsLeft int  `json:"seconds_left"`
	Expired     bool `json:"expired"`
}

type Manager struct {
	store  Store
	sealer *Sealer
	opts   Options
	now    func() time.Time
	logger *applog.Logger
}

func NewManager(store Store, sealer *Sealer, opts Options, logger *applog.Logger) *Manager {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Manager{
		store:  store,
		sealer: sealer,
		opts:   opts,
		now:    time.Now,
		logger: logger.WithComponent(applog.ComponentSession),
	}
}

// WithClock overrides the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) idleLimit() time.Duration {
	return m.opts.InactivityTimeout + m.opts.LogoutGrace
}

// Create starts a session for a freshly authenticated user and sets the
// cookie. mfaPending sessions cannot reach the dashboards yet.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, token string, user core.User, mfaPending bool) (*Session, error) {
	sealed, err := m.sealer.Seal(token)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	sess := &Session{
		ID:         uuid.NewString(),
		Token:      sealed,
		UserID:     user.ID,
		Role:       user.UserType,
		Email:      user.Email,
		Name:       user.FullName(),
		Language:   core.LanguageKreyol,
		CreatedAt:  now,
		LastSeen:   now,
		MFAPending: mfaPending,
	}
	if err := m.store.Save(ctx, sess, m.opts.TTL); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.opts.TTL.Seconds()),
	})

	m.logger.InfoContext(ctx, "Session created",
		applog.FieldSessionID, sess.ID[:8],
		applog.FieldUserID, sess.UserID.String(),
		applog.FieldRole, sess.Role.String())
	return sess, nil
}

// Load returns the session named by the request cookie. Sessions idle past
// the inactivity timeout plus grace are deleted and reported as ErrExpired.
// Load does not count as activity; call Touch for that.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNotFound
	}
	sess, err := m.store.Get(ctx, c.Value)
	if err != nil {
		return nil, err
	}
	if m.opts.InactivityTimeout > 0 && m.now().Sub(sess.LastSeen) >= m.idleLimit() {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			m.logger.WarnContext(ctx, "Failed to delete expired session", applog.FieldError, err.Error())
		}
		m.logger.InfoContext(ctx, "Session expired after inactivity",
			applog.FieldUserID, sess.UserID.String())
		return nil, ErrExpired
	}
	return sess, nil
}

// Touch records user activity and resets the idle timer.
func (m *Manager) Touch(ctx context.Context, sess *Session) error {
	sess.LastSeen = m.now().UTC()
	return m.store.Save(ctx, sess, m.opts.TTL)
}

// Save persists changes to an existing session without touching it.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	return m.store.Save(ctx, sess, m.opts.TTL)
}

// Token opens the sealed API token of a session.
func (m *Manager) Token(sess *Session) (string, error) {
	if sess == nil || sess.Token == "" {
		return "", ErrNotFound
	}
	return m.sealer.Open(sess.Token)
}

// Status reports whether the inactivity warning is due and how many
// seconds remain before the session is dropped.
func (m *Manager) Status(sess *Session) Status {
	if m.opts.InactivityTimeout <= 0 {
		return Status{SecondsLeft: -1}
	}
	idle := m.now().Sub(sess.LastSeen)
	left := m.idleLimit() - idle
	if left <= 0 {
		return Status{Warn: true, Expired: true}
	}
	return Status{
		Warn:        idle >= m.opts.InactivityTimeout,
		SecondsLeft: int((left + time.Second - 1) / time.Second),
	}
}

// Destroy deletes the request's session, if any, and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	if err := m.store.Delete(ctx, c.Value); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
