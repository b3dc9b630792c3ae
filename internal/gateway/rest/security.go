package rest

import (
	"context"
	"net/http"
	"net/url"

	"cashtimachann/internal/core"
)

func (c *Client) PINStatus(ctx context.Context, token string) (core.PINStatus, error) {
	var out core.PINStatus
	err := c.do(ctx, http.MethodGet, "/api/auth/pin/status/", token, nil, nil, &out)
	return out, err
}

func (c *Client) SetPIN(ctx context.Context, token, pin, confirm string) error {
	in := map[string]string{"pin": pin, "confirm_pin": confirm}
	return c.do(ctx, http.MethodPost, "/api/auth/pin/set/", token, nil, in, nil)
}

func (c *Client) SecurityOverview(ctx context.Context, token string) (core.SecurityOverview, error) {
	var out core.SecurityOverview
	err := c.do(ctx, http.MethodGet, "/api/auth/security/overview/", token, nil, nil, &out)
	return out, err
}

func (c *Client) Enable2FA(ctx context.Context, token string) (core.TwoFactorSetup, error) {
	var out core.TwoFactorSetup
	err := c.do(ctx, http.MethodPost, "/api/auth/security/enable-2fa/", token, nil, map[string]string{}, &out)
	return out, err
}

func (c *Client) Verify2FA(ctx context.Context, token, code string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/security/verify-2fa/", token, nil, map[string]string{"code": code}, nil)
}

func (c *Client) UpdateEmail(ctx context.Context, token, email string) error {
	return c.do(ctx, http.MethodPut, "/api/auth/update-email/", token, nil, map[string]string{"email": email}, nil)
}

func (c *Client) UpdatePhone(ctx context.Context, token, phone string) error {
	return c.do(ctx, http.MethodPut, "/api/auth/update-phone/", token, nil, map[string]string{"phone": phone}, nil)
}

func (c *Client) ChangePassword(ctx context.Context, token string, req core.ChangePasswordRequest) error {
	return c.do(ctx, http.MethodPut, "/api/auth/change-password/", token, nil, req, nil)
}

func (c *Client) UserLanguage(ctx context.Context, token string) (core.Language, error) {
	var out struct {
		Language string `json:"language"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/user-language/", token, nil, nil, &out); err != nil {
		return "", err
	}
	return core.ParseLanguage(out.Language), nil
}

func (c *Client) UpdateLanguage(ctx context.Context, token string, lang core.Language) error {
	return c.do(ctx, http.MethodPut, "/api/auth/update-language/", token, nil, map[string]string{"language": string(lang)}, nil)
}

func (c *Client) SearchUsers(ctx context.Context, token, query string) ([]core.UserSearchResult, error) {
	if len([]rune(query)) < core.MinSearchLength {
		return nil, nil
	}
	var out []core.UserSearchResult
	err := c.do(ctx, http.MethodGet, "/api/auth/users/search/", token, url.Values{"q": {query}}, nil, &out)
	return out, err
}
