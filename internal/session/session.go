// Package session keeps dashboard sessions on the server. The browser only
// holds an opaque session id; the backend API token lives sealed in the
// session record.
package session

import (
	"context"
	"errors"
	"time"

	"cashtimachann/internal/core"
)

var (
	// ErrNotFound is returned when no session exists for an id.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when a session went idle past its limit.
	ErrExpired = errors.New("session expired")
)

// Session is the server-side state of one logged-in browser.
type Session struct {
	ID         string        `json:"id"`
	Token      string        `json:"token"`
	UserID     core.ID       `json:"user_id"`
	Role       core.Role     `json:"role"`
	Email      string        `json:"email"`
	Name       string        `json:"name"`
	Language   core.Language `json:"language"`
	CreatedAt  time.Time     `json:"created_at"`
	LastSeen   time.Time     `json:"last_seen"`
	MFAPending bool          `json:"mfa_pending"`
}

// Store persists sessions by id.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
