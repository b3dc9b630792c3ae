package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithHTTPClient(srv.Client()), WithLogger(applog.Discard()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("ftp://example.com"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestProfileSendsTokenHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/profile/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token abc123" {
			t.Errorf("Authorization = %q", got)
		}
		io.WriteString(w, `{"user":{"id":7,"email":"a@b.ht","user_type":"agent"},"wallet":{"balance":"250.00","currency":"HTG"},"profile":{}}`)
	})

	data, err := c.Profile(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if data.User.UserType != core.RoleAgent || data.Wallet.Balance.Cents != 25000 {
		t.Errorf("unexpected profile %+v", data)
	}
}

func TestMissingTokenNeverCallsBackend(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.Profile(context.Background(), "")
	if !errors.Is(err, gateway.ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
	if called {
		t.Fatal("backend should not be called without a token")
	}
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Invalid token."}`)
	})
	_, err := c.TransactionStats(context.Background(), "stale")
	if !errors.Is(err, gateway.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestListTransactionsLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q, want default 10", got)
		}
		io.WriteString(w, `[{"id":"t1","amount":"10.00","status":"completed"}]`)
	})
	txs, err := c.ListTransactions(context.Background(), "tok", 0)
	if err != nil || len(txs) != 1 || txs[0].Amount.Cents != 1000 {
		t.Fatalf("ListTransactions = %+v, %v", txs, err)
	}
}

func TestSendMoneyDecodesBareTransaction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if body["receiver_phone"] != "37123456" || body["amount"] != "50.00" || body["pin"] != "1234" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"abc","reference_number":"TXN-1","amount":"50.00","fee":"1.25"}`)
	})

	rcpt, err := c.SendMoney(context.Background(), "tok", core.TransferRequest{
		ReceiverPhone: "37123456", Amount: core.Money{Cents: 5000}, PIN: "1234",
	})
	if err != nil {
		t.Fatalf("SendMoney: %v", err)
	}
	if !rcpt.Success || rcpt.Reference() != "TXN-1" || rcpt.Fee.Cents != 125 {
		t.Errorf("unexpected receipt %+v", rcpt)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Balans ou pa ase"}`)
	})
	_, err := c.AgentWithdrawal(context.Background(), "tok", core.AgentWithdrawalRequest{})
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 400 || apiErr.Message != "Balans ou pa ase" {
		t.Fatalf("err = %v", err)
	}
}

func TestSearchUsersShortQuery(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	res, err := c.SearchUsers(context.Background(), "tok", "ab")
	if err != nil || res != nil || called {
		t.Fatalf("short query should short-circuit: %v %v %v", res, err, called)
	}
}

func TestListAllTransactionsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/transactions/admin/all/" || q.Get("status") != "pending" || q.Get("page") != "2" || q.Get("limit") != "10" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		io.WriteString(w, `{"results":[{"id":1},{"id":2}],"count":12}`)
	})
	page, err := c.ListAllTransactions(context.Background(), "tok", core.TransactionFilter{Status: "pending", Page: 2})
	if err != nil || page.Count != 12 || len(page.Results) != 2 || page.Results[0].ID != "1" {
		t.Fatalf("page = %+v, %v", page, err)
	}
}

func TestAdjustWalletUsesAdminPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/admin/wallet-adjust/42/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"message":"ok","wallet":{"balance":"900.00","currency":"HTG","is_active":true}}`)
	})
	wallet, err := c.AdjustWallet(context.Background(), "tok", "42", core.WalletAdjustment{Operation: core.OperationDebit, Amount: core.Money{Cents: 10000}})
	if err != nil || wallet.Balance.Cents != 90000 {
		t.Fatalf("wallet = %+v, %v", wallet, err)
	}
}

func TestRegisterIsPublic(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/register/" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("register must not send a token")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["phone"] != "+50937129999" || body["residence_country_code"] != "HT" {
			t.Errorf("body = %v", body)
		}
		if _, ok := body["username"]; ok {
			t.Error("empty username should be omitted")
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"message":"Kont kreye","user_id":42,"verification_required":true}`)
	})

	res, err := c.Register(context.Background(), core.RegistrationRequest{
		Email: "tika@example.com", Phone: "+50937129999", ResidenceCountryCode: "HT",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.UserID != "42" || !res.VerificationRequired {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRegisterConflictCarriesCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Nimewo telefòn sa a deja itilize","error_code":"PHONE_EXISTS"}`)
	})
	_, err := c.Register(context.Background(), core.RegistrationRequest{})
	if gateway.ErrorCode(err) != "PHONE_EXISTS" {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckUsernameQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/check-username/" || r.URL.Query().Get("username") != "ti.jan" {
			t.Errorf("url = %s", r.URL)
		}
		io.WriteString(w, `{"available":false,"message":"Non itilizatè sa a pa disponib"}`)
	})
	got, err := c.CheckUsername(context.Background(), "ti.jan")
	if err != nil {
		t.Fatalf("CheckUsername: %v", err)
	}
	if got.Available {
		t.Error("expected taken")
	}
}

func TestPasswordResetConfirmBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/password-reset/confirm/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["uid"] != "MQ" || body["token"] != "tok" || body["confirm_password"] != "Nouvo#2026" {
			t.Errorf("body = %v", body)
		}
		io.WriteString(w, `{"message":"Modpas chanje"}`)
	})
	err := c.ConfirmPasswordReset(context.Background(), core.PasswordResetConfirm{
		UID: "MQ", Token: "tok", NewPassword: "Nouvo#2026", ConfirmPassword: "Nouvo#2026",
	})
	if err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}
}
