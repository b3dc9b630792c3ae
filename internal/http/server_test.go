package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"cashtimachann/internal/gateway/memory"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
	"cashtimachann/internal/services"
	"cashtimachann/internal/session"
	"cashtimachann/internal/twofactor"
)

type memEnrollments struct {
	mu   sync.Mutex
	rows map[string]twofactor.Enrollment
}

func (m *memEnrollments) GetEnrollment(_ context.Context, email string) (twofactor.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[email]
	if !ok {
		return twofactor.Enrollment{}, twofactor.ErrNotEnrolled
	}
	return e, nil
}

func (m *memEnrollments) SaveEnrollment(_ context.Context, e twofactor.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[e.Email] = e
	return nil
}

type testEnv struct {
	srv      *Server
	gw       *memory.Store
	sessions *session.Manager
	coreData *services.CoreData
}

func newTestEnv(t *testing.T, tf *twofactor.Service) *testEnv {
	t.Helper()
	logger := applog.Discard()
	gw := memory.New()
	sealer, err := session.NewSealer("test-secret-for-http-package")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sessions := session.NewManager(session.NewMemoryStore(100), sealer, session.Options{
		TTL:               time.Hour,
		InactivityTimeout: 10 * time.Minute,
	}, logger)
	coreData := services.NewCoreData(gw, services.DefaultCoreDataConfig(), logger)
	book := recipients.NewBook(recipients.NewMemoryStore(), logger)

	srv := NewServer("", Deps{
		Gateway:    gw,
		Sessions:   sessions,
		CoreData:   coreData,
		Payments:   services.NewPayments(gw, coreData, book, nil, logger),
		Admin:      services.NewAdmin(gw, nil, logger),
		Recipients: book,
		TwoFactor:  tf,
		Logger:     logger,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, gw: gw, sessions: sessions, coreData: coreData}
}

func (e *testEnv) do(method, path string, form url.Values, cookies []*http.Cookie, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func sessionCookies(rr *httptest.ResponseRecorder) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName && c.Value != "" {
			out = append(out, c)
		}
	}
	return out
}

func (e *testEnv) login(t *testing.T, path, email string) []*http.Cookie {
	t.Helper()
	rr := e.do(http.MethodPost, path, url.Values{"email": {email}, "password": {memory.DemoPassword}}, nil, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("login %s status=%d body=%s", email, rr.Code, rr.Body.String())
	}
	cookies := sessionCookies(rr)
	if len(cookies) == 0 {
		t.Fatalf("login %s set no session cookie", email)
	}
	return cookies
}

func TestHealthReadyAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(http.MethodGet, path, nil, nil, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	rr := env.do(http.MethodGet, "/metrics", nil, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	for _, want := range []string{"payments_submitted_total", "logins_total{outcome=\"success\"}", "uptime_seconds"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestLoginRedirectsToRoleHome(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		email string
		home  string
	}{
		{"client@cashtimachann.ht", "/dashboard/client"},
		{"agent@cashtimachann.ht", "/dashboard/agent"},
		{"enterprise@cashtimachann.ht", "/dashboard/enterprise"},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/login", url.Values{"email": {tt.email}, "password": {memory.DemoPassword}}, nil, nil)
			if rr.Code != http.StatusSeeOther {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if loc := rr.Header().Get("Location"); loc != tt.home {
				t.Fatalf("Location=%q want %q", loc, tt.home)
			}
			if len(sessionCookies(rr)) != 1 {
				t.Fatalf("session cookie not set")
			}
		})
	}
}

func TestLoginRejections(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name     string
		path     string
		email    string
		password string
		want     int
	}{
		{"wrong password", "/login", "client@cashtimachann.ht", "nope", http.StatusUnauthorized},
		{"missing fields", "/login", "", "", http.StatusUnprocessableEntity},
		{"admin on user form", "/login", "admin@cashtimachann.ht", memory.DemoPassword, http.StatusForbidden},
		{"client on admin form", "/login/admin", "client@cashtimachann.ht", memory.DemoPassword, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, tt.path, url.Values{"email": {tt.email}, "password": {tt.password}}, nil, nil)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d", rr.Code, tt.want)
			}
			if len(sessionCookies(rr)) != 0 {
				t.Fatalf("rejected login set a session cookie")
			}
		})
	}
}

func TestLoginThrottled(t *testing.T) {
	env := newTestEnv(t, nil)
	form := url.Values{"email": {"client@cashtimachann.ht"}, "password": {"wrong"}}

	var last int
	for i := 0; i < 6; i++ {
		last = env.do(http.MethodPost, "/login", form, nil, nil).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt status=%d want 429", last)
	}
}

func TestRoleGate(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(http.MethodGet, "/dashboard/client", nil, nil, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("anonymous: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	rr = env.do(http.MethodGet, "/ui/summary", nil, nil, map[string]string{"HX-Request": "true"})
	if rr.Header().Get("HX-Redirect") != "/login" {
		t.Fatalf("anonymous htmx: HX-Redirect=%q", rr.Header().Get("HX-Redirect"))
	}

	cookies := env.login(t, "/login", "client@cashtimachann.ht")
	rr = env.do(http.MethodGet, "/dashboard/client", nil, cookies, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("own dashboard status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodGet, "/dashboard/agent", nil, cookies, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign dashboard status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `data-redirect="/dashboard/client"`) {
		t.Fatalf("unauthorized page does not point home")
	}
	if !strings.Contains(rr.Body.String(), `data-redirect-after="3"`) {
		t.Fatalf("unauthorized page should send the user home after 3 seconds")
	}

	rr = env.do(http.MethodGet, "/admin/users", nil, cookies, map[string]string{"HX-Request": "true"})
	if rr.Code != http.StatusForbidden || rr.Header().Get("HX-Redirect") != "/dashboard/client" {
		t.Fatalf("htmx admin call: status=%d HX-Redirect=%q", rr.Code, rr.Header().Get("HX-Redirect"))
	}
}

// backendToken reads the sealed backend token out of a session cookie.
func (e *testEnv) backendToken(t *testing.T, cookies []*http.Cookie) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	sess, err := e.sessions.Load(req.Context(), req)
	if err != nil {
		t.Fatalf("session Load: %v", err)
	}
	tok, err := e.sessions.Token(sess)
	if err != nil {
		t.Fatalf("session Token: %v", err)
	}
	return tok
}

func TestRevokedBackendTokenEndsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t, "/login", "client@cashtimachann.ht")

	tok := env.backendToken(t, cookies)
	if err := env.gw.Logout(context.Background(), tok); err != nil {
		t.Fatalf("backend Logout: %v", err)
	}
	env.coreData.Invalidate(tok)

	rr := env.do(http.MethodGet, "/dashboard/client", nil, cookies, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == session.CookieName && c.Value == "" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("session cookie not cleared")
	}

	rr = env.do(http.MethodGet, "/dashboard/client", nil, cookies, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("old cookie still accepted: status=%d", rr.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t, "/login", "agent@cashtimachann.ht")

	rr := env.do(http.MethodPost, "/logout", url.Values{}, cookies, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("logout status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	rr = env.do(http.MethodGet, "/dashboard/agent", nil, cookies, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("after logout status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestTransferIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t, "/login", "client@cashtimachann.ht")
	form := url.Values{
		"receiver": {"38123456"},
		"amount":   {"100"},
		"pin":      {"1234"},
	}
	headers := map[string]string{"HX-Request": "true", "Idempotency-Key": "transfer-1"}

	first := env.do(http.MethodPost, "/payments/transfer", form, cookies, headers)
	if first.Code != http.StatusOK {
		t.Fatalf("first status=%d body=%s", first.Code, first.Body.String())
	}
	if !strings.Contains(first.Header().Get("HX-Trigger"), "payment:done") {
		t.Fatalf("HX-Trigger=%q", first.Header().Get("HX-Trigger"))
	}

	second := env.do(http.MethodPost, "/payments/transfer", form, cookies, headers)
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("second submission was not replayed: status=%d", second.Code)
	}

	data, err := env.gw.Profile(context.Background(), env.gw.TokenFor("rose@cashtimachann.ht"))
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got := data.Wallet.Balance.Cents; got != 400_00 {
		t.Fatalf("receiver balance=%d want 40000", got)
	}

	rr := env.do(http.MethodPost, "/payments/transfer", form, cookies, map[string]string{"HX-Request": "true"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing key status=%d", rr.Code)
	}
}

func TestTransferValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t, "/login", "client@cashtimachann.ht")

	tests := []struct {
		name string
		form url.Values
	}{
		{"bad amount", url.Values{"receiver": {"38123456"}, "amount": {"abc"}, "pin": {"1234"}}},
		{"over balance", url.Values{"receiver": {"38123456"}, "amount": {"99999"}, "pin": {"1234"}}},
		{"self transfer", url.Values{"receiver": {"37123456"}, "amount": {"10"}, "pin": {"1234"}}},
		{"short pin", url.Values{"receiver": {"38123456"}, "amount": {"10"}, "pin": {"12"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{"HX-Request": "true", "Idempotency-Key": "validation-" + tt.name}
			rr := env.do(http.MethodPost, "/payments/transfer", tt.form, cookies, headers)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCrossOriginPostRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t, "/login", "client@cashtimachann.ht")

	rr := env.do(http.MethodPost, "/ui/refresh", url.Values{}, cookies, map[string]string{"Origin": "https://evil.example"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("cross-origin status=%d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/ui/refresh", url.Values{}, cookies, map[string]string{"Origin": "http://example.com", "HX-Request": "true"})
	if rr.Code != http.StatusOK {
		t.Fatalf("same-origin status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSessionStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(http.MethodGet, "/ui/session/status", nil, nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status=%d", rr.Code)
	}

	cookies := env.login(t, "/login", "client@cashtimachann.ht")
	rr = env.do(http.MethodGet, "/ui/session/status", nil, cookies, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var st sessionStatus
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Expired || st.Warn || st.SecondsLeft <= 0 {
		t.Fatalf("fresh session status = %+v", st)
	}
}

func TestPhoneFormatHint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(http.MethodGet, "/ui/phone/format?country=XX&phone=123", nil, nil, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown country status=%d", rr.Code)
	}
	rr = env.do(http.MethodGet, "/ui/phone/format?country=HT&phone=37123456", nil, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestAdminWithoutTwoFactor(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t, "/login/admin", "admin@cashtimachann.ht")

	rr := env.do(http.MethodGet, "/admin/transactions.csv", nil, cookies, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("csv status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("Content-Type=%q", ct)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "attachment") {
		t.Fatalf("Content-Disposition=%q", rr.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rr.Body.String(), "Referans") {
		t.Fatalf("csv header missing: %q", rr.Body.String())
	}

	rr = env.do(http.MethodPost, "/admin/transactions/export-sheet", url.Values{}, cookies, map[string]string{"HX-Request": "true"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("sheet export without broker status=%d", rr.Code)
	}

	rr = env.do(http.MethodGet, "/dashboard/client", nil, cookies, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("admin on client dashboard status=%d", rr.Code)
	}
}

func TestAdminUserListingByRole(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t, "/login/admin", "admin@cashtimachann.ht")
	htmx := map[string]string{"HX-Request": "true"}

	tests := []struct {
		query   string
		want    []string
		notWant []string
	}{
		{"", []string{"client@cashtimachann.ht"}, []string{"agent@cashtimachann.ht", "enterprise@cashtimachann.ht"}},
		{"?role=agent", []string{"agent@cashtimachann.ht"}, []string{"client@cashtimachann.ht", "enterprise@cashtimachann.ht"}},
		{"?role=enterprise", []string{"enterprise@cashtimachann.ht"}, []string{"agent@cashtimachann.ht"}},
		{"?role=all", []string{"client@cashtimachann.ht", "agent@cashtimachann.ht", "enterprise@cashtimachann.ht"}, []string{"admin@cashtimachann.ht"}},
	}
	for _, tt := range tests {
		rr := env.do(http.MethodGet, "/admin/users"+tt.query, nil, cookies, htmx)
		if rr.Code != http.StatusOK {
			t.Fatalf("%q status=%d body=%s", tt.query, rr.Code, rr.Body.String())
		}
		body := rr.Body.String()
		for _, w := range tt.want {
			if !strings.Contains(body, w) {
				t.Errorf("%q: missing %s", tt.query, w)
			}
		}
		for _, w := range tt.notWant {
			if strings.Contains(body, w) {
				t.Errorf("%q: unexpected %s", tt.query, w)
			}
		}
	}
}

func TestAdminTwoFactorLogin(t *testing.T) {
	store := &memEnrollments{rows: map[string]twofactor.Enrollment{}}
	env := newTestEnv(t, twofactor.NewService(store, "Cash Ti Machann", applog.Discard()))

	rr := env.do(http.MethodPost, "/login/admin", url.Values{"email": {"admin@cashtimachann.ht"}, "password": {memory.DemoPassword}}, nil, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login/admin/verify" {
		t.Fatalf("admin login status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	cookies := sessionCookies(rr)

	rr = env.do(http.MethodGet, "/dashboard/admin", nil, cookies, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login/admin/verify" {
		t.Fatalf("pending admin reached dashboard: status=%d", rr.Code)
	}

	rr = env.do(http.MethodGet, "/login/admin/verify", nil, cookies, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify page status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodPost, "/login/admin/verify", url.Values{"code": {"000000"}}, cookies, nil)
	if rr.Code != http.StatusUnauthorized && rr.Code != http.StatusSeeOther {
		t.Fatalf("wrong code status=%d", rr.Code)
	}

	enrollment, err := store.GetEnrollment(context.Background(), "admin@cashtimachann.ht")
	if err != nil {
		t.Fatalf("enrolment not started: %v", err)
	}
	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	rr = env.do(http.MethodPost, "/login/admin/verify", url.Values{"code": {code}}, cookies, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/dashboard/admin" {
		t.Fatalf("verify status=%d location=%q body=%s", rr.Code, rr.Header().Get("Location"), rr.Body.String())
	}

	rr = env.do(http.MethodGet, "/admin/stats", nil, cookies, map[string]string{"HX-Request": "true"})
	if rr.Code != http.StatusOK {
		t.Fatalf("admin stats status=%d", rr.Code)
	}
}
