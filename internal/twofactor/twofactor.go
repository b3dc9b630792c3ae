// Package twofactor implements the TOTP second step of the admin login.
package twofactor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	applog "cashtimachann/internal/log"
)

var (
	ErrNotEnrolled = errors.New("no totp enrolment for this account")
	ErrInvalidCode = errors.New("invalid verification code")
)

// Enrollment is the TOTP secret of one admin account.
type Enrollment struct {
	Email     string
	Secret    string
	Confirmed bool
	CreatedAt time.Time
}

// Store persists enrolments keyed by normalized e-mail.
type Store interface {
	GetEnrollment(ctx context.Context, email string) (Enrollment, error)
	SaveEnrollment(ctx context.Context, e Enrollment) error
}

type Service struct {
	store  Store
	issuer string
	now    func() time.Time
	logger *applog.Logger
}

func NewService(store Store, issuer string, logger *applog.Logger) *Service {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Service{
		store:  store,
		issuer: issuer,
		now:    time.Now,
		logger: logger.WithComponent(applog.ComponentAuth),
	}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Begin returns the enrolment of email, creating an unconfirmed one when
// none exists.
func (s *Service) Begin(ctx context.Context, email string) (Enrollment, error) {
	email = normalizeEmail(email)
	e, err := s.store.GetEnrollment(ctx, email)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, ErrNotEnrolled) {
		return Enrollment{}, fmt.Errorf("load enrolment: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: email,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}
	e = Enrollment{Email: email, Secret: key.Secret(), CreatedAt: s.now().UTC()}
	if err := s.store.SaveEnrollment(ctx, e); err != nil {
		return Enrollment{}, fmt.Errorf("save enrolment: %w", err)
	}
	s.logger.InfoContext(ctx, "TOTP enrolment started", "email", applog.MaskEmail(email))
	return e, nil
}

// Verify checks code against the enrolment of email and confirms the
// enrolment on first success.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	e, err := s.store.GetEnrollment(ctx, email)
	if err != nil {
		return err
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), e.Secret, s.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		s.logger.WarnContext(ctx, "TOTP verification failed", "email", applog.MaskEmail(email))
		return ErrInvalidCode
	}
	if !e.Confirmed {
		e.Confirmed = true
		if err := s.store.SaveEnrollment(ctx, e); err != nil {
			return fmt.Errorf("confirm enrolment: %w", err)
		}
		s.logger.InfoContext(ctx, "TOTP enrolment confirmed", "email", applog.MaskEmail(email))
	}
	return nil
}

// KeyURL is the otpauth:// URL authenticator apps scan.
func (s *Service) KeyURL(e Enrollment) (string, error) {
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + s.issuer + ":" + e.Email,
		RawQuery: url.Values{"secret": {e.Secret}, "issuer": {s.issuer}}.Encode(),
	}
	key, err := otp.NewKeyFromURL(u.String())
	if err != nil {
		return "", fmt.Errorf("build key url: %w", err)
	}
	return key.URL(), nil
}
