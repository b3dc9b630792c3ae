package rest

import (
	"context"
	"net/http"
	"net/url"

	"cashtimachann/internal/core"
)

func adminPath(action string, id core.ID) string {
	return "/api/auth/admin/" + action + "/" + url.PathEscape(id.String()) + "/"
}

func (c *Client) DashboardStats(ctx context.Context, token string) (core.AdminStats, error) {
	var out core.AdminStats
	err := c.do(ctx, http.MethodGet, "/api/auth/admin/dashboard-stats/", token, nil, nil, &out)
	return out, err
}

func (c *Client) RecentActivity(ctx context.Context, token string) ([]core.Activity, error) {
	var out struct {
		Activities []core.Activity `json:"activities"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/admin/recent-activity/", token, nil, nil, &out)
	return out.Activities, err
}

func (c *Client) ListUsers(ctx context.Context, token string) ([]core.User, error) {
	var out []core.User
	err := c.do(ctx, http.MethodGet, "/api/auth/admin/users/", token, nil, nil, &out)
	return out, err
}

func (c *Client) UserDetails(ctx context.Context, token string, id core.ID) (core.UserDetails, error) {
	var out core.UserDetails
	err := c.do(ctx, http.MethodGet, adminPath("user-details", id), token, nil, nil, &out)
	return out, err
}

func (c *Client) ToggleUserStatus(ctx context.Context, token string, id core.ID) error {
	return c.do(ctx, http.MethodPost, adminPath("toggle-user-status", id), token, nil, map[string]string{}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token string, id core.ID) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, adminPath("reset-password", id), token, nil, map[string]string{}, &out)
	return out.Message, err
}

func (c *Client) CreateUser(ctx context.Context, token string, req core.CreateUserRequest) (core.User, error) {
	var out struct {
		core.User
		Nested *core.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/admin/create-user/", token, nil, req, &out); err != nil {
		return core.User{}, err
	}
	if out.Nested != nil {
		return *out.Nested, nil
	}
	return out.User, nil
}

func (c *Client) UpdateUser(ctx context.Context, token string, id core.ID, req core.UpdateUserRequest) error {
	return c.do(ctx, http.MethodPatch, adminPath("update-user", id), token, nil, req, nil)
}

func (c *Client) ApproveDocument(ctx context.Context, token string, userID, documentID core.ID) error {
	in := map[string]any{}
	if documentID != "" {
		in["document_id"] = documentID
	}
	return c.do(ctx, http.MethodPost, adminPath("approve-document", userID), token, nil, in, nil)
}

func (c *Client) RejectDocument(ctx context.Context, token string, userID, documentID core.ID, reason string) error {
	in := map[string]any{"reason": reason}
	if documentID != "" {
		in["document_id"] = documentID
	}
	return c.do(ctx, http.MethodPost, adminPath("reject-document", userID), token, nil, in, nil)
}

func (c *Client) AdjustWallet(ctx context.Context, token string, userID core.ID, adj core.WalletAdjustment) (core.Wallet, error) {
	var out struct {
		Wallet core.Wallet `json:"wallet"`
	}
	err := c.do(ctx, http.MethodPost, adminPath("wallet-adjust", userID), token, nil, adj, &out)
	return out.Wallet, err
}

func (c *Client) ToggleWallet(ctx context.Context, token string, userID core.ID) error {
	return c.do(ctx, http.MethodPost, adminPath("wallet-toggle", userID), token, nil, map[string]string{}, nil)
}

func (c *Client) ListAllTransactions(ctx context.Context, token string, filter core.TransactionFilter) (core.TransactionPage, error) {
	var out core.TransactionPage
	err := c.do(ctx, http.MethodGet, "/api/transactions/admin/all/", token, filter.Query(), nil, &out)
	return out, err
}

func (c *Client) UpdateTransactionStatus(ctx context.Context, token string, id core.ID, status, reason string) error {
	in := map[string]string{"status": status, "reason": reason}
	return c.do(ctx, http.MethodPatch, "/api/transactions/admin/"+url.PathEscape(id.String())+"/status/", token, nil, in, nil)
}
