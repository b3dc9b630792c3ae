package http

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"cashtimachann/internal/gateway/memory"
)

func signupValues() url.Values {
	return url.Values{
		"first_name":         {"Tika"},
		"last_name":          {"Jan"},
		"date_of_birth":      {"1995-04-12"},
		"email":              {"tika@example.com"},
		"country_code":       {"HT"},
		"phone":              {"3912-3456"},
		"password":           {"sekrè123"},
		"confirm_password":   {"sekrè123"},
		"address":            {"12 Ri Kapwa"},
		"city":               {"Jakmèl"},
		"residence_country":  {"HT"},
		"id_document_type":   {"national_id"},
		"id_document_number": {"001-234-567"},
		"agree_terms":        {"1"},
	}
}

func TestRegisterPageOffersAllowedCountries(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(http.MethodGet, "/register", nil, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Etazini (+1)") || !strings.Contains(body, `<optgroup label="Kanada">`) {
		t.Error("register page misses allowed countries")
	}
	if strings.Contains(body, "Gwadloup") {
		t.Error("register page offers a country closed to sign-up")
	}
}

func TestRegisterShowsFieldErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	form := signupValues()
	form.Set("phone", "9123")
	rr := env.do(http.MethodPost, "/register", form, nil, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad phone status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Ayiti: 8 chif, kòmanse ak 2-5.") {
		t.Error("phone error not shown")
	}
	if !strings.Contains(body, `value="tika@example.com"`) {
		t.Error("entered values should be kept")
	}

	form = signupValues()
	form.Set("country_code", "US")
	form.Set("phone", "5551234")
	rr = env.do(http.MethodPost, "/register", form, nil, nil)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Chwazi kòd rejyon an") {
		t.Fatalf("missing area code: status=%d", rr.Code)
	}

	form = signupValues()
	form.Set("email", "client@cashtimachann.ht")
	rr = env.do(http.MethodPost, "/register", form, nil, nil)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Yon kont deja egziste ak email sa a") {
		t.Fatalf("duplicate email: status=%d", rr.Code)
	}
}

func TestRegisterVerifyThenLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(http.MethodPost, "/register", signupValues(), nil, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("register status=%d body=%s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/registration-success?email=tika%40example.com" {
		t.Fatalf("Location = %q", loc)
	}
	rr = env.do(http.MethodGet, "/registration-success?email=tika%40example.com", nil, nil, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "tika@example.com") {
		t.Fatalf("success page status=%d", rr.Code)
	}

	before := env.gw.EmailCode("tika@example.com")
	rr = env.do(http.MethodPost, "/verify-email/resend", url.Values{"email": {"tika@example.com"}}, nil, map[string]string{"HX-Request": "true"})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), msgCodeResent) {
		t.Fatalf("resend status=%d body=%s", rr.Code, rr.Body.String())
	}
	code := env.gw.EmailCode("tika@example.com")
	if code == "" {
		t.Fatal("no pending code")
	}

	wrong := before
	if wrong == code || wrong == "" {
		wrong = "000000"
		if code == wrong {
			wrong = "111111"
		}
	}
	rr = env.do(http.MethodPost, "/verify-email", url.Values{"email": {"tika@example.com"}, "code": {wrong}}, nil, nil)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "Kòd konfimme a pa kòrèk") {
		t.Fatalf("wrong code status=%d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/verify-email", url.Values{"email": {"tika@example.com"}, "code": {code}}, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `data-redirect="/login"`) {
		t.Error("confirmation page should send the user to the login page")
	}

	rr = env.do(http.MethodPost, "/login", url.Values{"email": {"tika@example.com"}, "password": {"sekrè123"}}, nil, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/dashboard/client" {
		t.Fatalf("login after verification: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestUsernameCheck(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		username string
		want     string
	}{
		{"agent", `class="hint error"`},
		{"ti.jan", `class="hint ok"`},
		{"a b", `class="hint error"`},
		{"", ""},
	}
	for _, tt := range tests {
		rr := env.do(http.MethodGet, "/ui/register/username?username="+url.QueryEscape(tt.username), nil, nil, map[string]string{"HX-Request": "true"})
		if rr.Code != http.StatusOK {
			t.Fatalf("%q status=%d", tt.username, rr.Code)
		}
		body := strings.TrimSpace(rr.Body.String())
		if tt.want == "" {
			if body != "" {
				t.Errorf("blank username body = %q", body)
			}
			continue
		}
		if !strings.Contains(body, tt.want) {
			t.Errorf("%q body = %q, want %s", tt.username, body, tt.want)
		}
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(http.MethodPost, "/forgot-password", url.Values{"email": {"client@cashtimachann.ht"}}, nil, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), msgResetRequested) {
		t.Fatalf("forgot status=%d", rr.Code)
	}
	uid, token := env.gw.ResetLink("client@cashtimachann.ht")
	if token == "" {
		t.Fatal("no reset link issued")
	}

	rr = env.do(http.MethodGet, "/reset-password", nil, nil, nil)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), msgResetLink) {
		t.Fatalf("reset without link status=%d", rr.Code)
	}
	link := "/reset-password?" + url.Values{"uid": {uid}, "token": {token}}.Encode()
	rr = env.do(http.MethodGet, link, nil, nil, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `name="token" value="`+token+`"`) {
		t.Fatalf("reset page status=%d", rr.Code)
	}

	weak := url.Values{"uid": {uid}, "token": {token}, "new_password": {"nouvo#2026"}, "confirm_password": {"nouvo#2026"}}
	rr = env.do(http.MethodPost, "/reset-password", weak, nil, nil)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "lèt majiskil") {
		t.Fatalf("weak password status=%d", rr.Code)
	}

	ok := url.Values{"uid": {uid}, "token": {token}, "new_password": {"Nouvo#2026"}, "confirm_password": {"Nouvo#2026"}}
	rr = env.do(http.MethodPost, "/reset-password", ok, nil, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `data-redirect-after="2.5"`) {
		t.Fatalf("reset status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodPost, "/login", url.Values{"email": {"client@cashtimachann.ht"}, "password": {memory.DemoPassword}}, nil, nil)
	if rr.Code == http.StatusSeeOther {
		t.Fatal("old password should no longer work")
	}
	rr = env.do(http.MethodPost, "/login", url.Values{"email": {"client@cashtimachann.ht"}, "password": {"Nouvo#2026"}}, nil, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("login with new password status=%d", rr.Code)
	}
}

func TestAccountFormsThrottled(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(http.MethodPost, "/forgot-password", url.Values{"email": {"a0@example.com"}}, nil, nil)
	for i := 1; i < 6; i++ {
		rr = env.do(http.MethodPost, "/forgot-password", url.Values{"email": {"a" + string(rune('0'+i)) + "@example.com"}}, nil, nil)
	}
	if rr.Code != http.StatusTooManyRequests || !strings.Contains(rr.Body.String(), msgTooManyRequests) {
		t.Fatalf("sixth attempt status=%d", rr.Code)
	}

	// The login budget is separate.
	env.login(t, "/login", "client@cashtimachann.ht")
}
