package rest

import (
	"context"
	"net/http"
	"net/url"

	"cashtimachann/internal/core"
)

func (c *Client) Register(ctx context.Context, req core.RegistrationRequest) (core.RegistrationResult, error) {
	var out core.RegistrationResult
	err := c.doPublic(ctx, http.MethodPost, "/api/auth/register/", req, &out)
	return out, err
}

func (c *Client) CheckUsername(ctx context.Context, username string) (core.UsernameAvailability, error) {
	var out core.UsernameAvailability
	q := url.Values{"username": {username}}
	err := c.send(ctx, http.MethodGet, "/api/auth/check-username/", "", false, q, nil, &out)
	return out, err
}

func (c *Client) VerifyEmail(ctx context.Context, email, code string) error {
	in := map[string]string{"email": email, "code": code}
	return c.doPublic(ctx, http.MethodPost, "/api/auth/verify-email/", in, nil)
}

func (c *Client) ResendVerification(ctx context.Context, email string) error {
	in := map[string]string{"email": email}
	return c.doPublic(ctx, http.MethodPost, "/api/auth/resend-verification/", in, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	in := map[string]string{"email": email}
	return c.doPublic(ctx, http.MethodPost, "/api/auth/forgot-password/", in, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, req core.PasswordResetConfirm) error {
	return c.doPublic(ctx, http.MethodPost, "/api/auth/password-reset/confirm/", req, nil)
}
