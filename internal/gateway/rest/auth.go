package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"cashtimachann/internal/core"
)

func (c *Client) Login(ctx context.Context, email, password string) (core.LoginResult, error) {
	var out core.LoginResult
	in := map[string]string{"email": email, "password": password}
	err := c.doPublic(ctx, http.MethodPost, "/api/auth/login/", in, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout/", token, nil, nil, nil)
}

func (c *Client) Profile(ctx context.Context, token string) (core.UserData, error) {
	var out core.UserData
	err := c.do(ctx, http.MethodGet, "/api/auth/profile/", token, nil, nil, &out)
	return out, err
}

func (c *Client) RequestVerification(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/request-verification/", token, nil, map[string]string{}, nil)
}

func (c *Client) ListTransactions(ctx context.Context, token string, limit int) ([]core.Transaction, error) {
	if limit < 1 {
		limit = core.DefaultPageSize
	}
	var out []core.Transaction
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	err := c.do(ctx, http.MethodGet, "/api/transactions/", token, q, nil, &out)
	return out, err
}

func (c *Client) TransactionStats(ctx context.Context, token string) (core.TransactionStats, error) {
	var out core.TransactionStats
	err := c.do(ctx, http.MethodGet, "/api/transactions/stats/", token, nil, nil, &out)
	return out, err
}

func (c *Client) TransactionDetails(ctx context.Context, token string, id core.ID) (core.Transaction, error) {
	var out core.Transaction
	err := c.do(ctx, http.MethodGet, "/api/transactions/details/"+url.PathEscape(id.String())+"/", token, nil, nil, &out)
	return out, err
}
