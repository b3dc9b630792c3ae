package memory

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
)

func signup(email, phone string) core.RegistrationRequest {
	return core.RegistrationRequest{
		Email: email, Phone: phone, Password: "sekrè123",
		FirstName: "Tika", LastName: "Jan", DateOfBirth: "1995-04-12",
		ResidenceCountryCode: "HT", Country: "Haiti",
	}
}

func TestRegisterThenVerify(t *testing.T) {
	s := New()
	ctx := context.Background()

	res, err := s.Register(ctx, signup("tika@example.com", "+50937129999"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !res.VerificationRequired || res.UserID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := s.Login(ctx, "tika@example.com", "sekrè123"); err == nil {
		t.Fatal("unverified account should not log in")
	}

	code := s.EmailCode("tika@example.com")
	if len(code) != 6 {
		t.Fatalf("code = %q", code)
	}
	if err := s.VerifyEmail(ctx, "tika@example.com", "000000x"); gateway.Message(err) != "Kòd konfimme a pa kòrèk" {
		t.Fatalf("wrong code = %v", err)
	}
	if err := s.VerifyEmail(ctx, "nobody@example.com", code); gateway.Message(err) != "Email sa a pa egziste" {
		t.Fatalf("unknown email = %v", err)
	}
	if err := s.VerifyEmail(ctx, "Tika@Example.com", code); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	login, err := s.Login(ctx, "tika@example.com", "sekrè123")
	if err != nil {
		t.Fatalf("Login after verify: %v", err)
	}
	if login.User.Username != "tika" || login.User.PhoneNumber != "37129999" || login.User.UserType != core.RoleClient {
		t.Errorf("unexpected user %+v", login.User)
	}
	if err := s.ResendVerification(ctx, "tika@example.com"); err == nil {
		t.Error("resend after verification should fail")
	}
}

func TestRegisterConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()
	tests := []struct {
		name string
		req  core.RegistrationRequest
		code string
	}{
		{"email", signup("CLIENT@cashtimachann.ht", "+50939999999"), "EMAIL_EXISTS"},
		{"phone", signup("new@example.com", "+509 3712-3456"), "PHONE_EXISTS"},
		{"country", signup("new@example.com", "+59069012345"), "UNSUPPORTED_COUNTRY_CODE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.req)
			if got := gateway.ErrorCode(err); got != tt.code {
				t.Errorf("code = %q, want %q (%v)", got, tt.code, err)
			}
		})
	}

	taken := signup("other@example.com", "+50939999999")
	taken.Username = "agent"
	if _, err := s.Register(ctx, taken); gateway.ErrorCode(err) != "USERNAME_EXISTS" {
		t.Errorf("username conflict = %v", err)
	}
}

func TestRegisterGeneratesUniqueUsername(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Register(ctx, signup("client@example.com", "+50939999999")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	avail, err := s.CheckUsername(ctx, "client1")
	if err != nil {
		t.Fatalf("CheckUsername: %v", err)
	}
	if avail.Available {
		t.Error("client1 should be generated for the second client address")
	}
	if avail, _ := s.CheckUsername(ctx, "client2"); !avail.Available {
		t.Error("client2 should be free")
	}
	if _, err := s.CheckUsername(ctx, " "); err == nil {
		t.Error("empty username should be rejected")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := s.ForgotPassword(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown address must not leak: %v", err)
	}
	if err := s.ForgotPassword(ctx, "client@cashtimachann.ht"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	err := s.ForgotPassword(ctx, "client@cashtimachann.ht")
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("second request within the interval = %v", err)
	}

	uid, token := s.ResetLink("client@cashtimachann.ht")
	if uid == "" || token == "" {
		t.Fatal("no reset link issued")
	}
	req := core.PasswordResetConfirm{UID: uid, Token: token, NewPassword: "nouvo#2026", ConfirmPassword: "nouvo#2027"}
	if err := s.ConfirmPasswordReset(ctx, req); gateway.Message(err) != "Konfimasyon modpas la pa koresponn" {
		t.Fatalf("mismatch = %v", err)
	}
	req.ConfirmPassword = req.NewPassword
	req.UID = "bad"
	if err := s.ConfirmPasswordReset(ctx, req); gateway.Message(err) != "Token pa valid oswa ekspire" {
		t.Fatalf("wrong uid = %v", err)
	}
	req.UID = uid
	if err := s.ConfirmPasswordReset(ctx, req); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}
	if _, err := s.Login(ctx, "client@cashtimachann.ht", "nouvo#2026"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if err := s.ConfirmPasswordReset(ctx, req); err == nil {
		t.Fatal("reset token must be single use")
	}

	now = now.Add(resetInterval + time.Second)
	if err := s.ForgotPassword(ctx, "client@cashtimachann.ht"); err != nil {
		t.Fatalf("after the interval: %v", err)
	}
	uid, token = s.ResetLink("client@cashtimachann.ht")
	now = now.Add(resetTTL + time.Second)
	req = core.PasswordResetConfirm{UID: uid, Token: token, NewPassword: "lot#Modpas1", ConfirmPassword: "lot#Modpas1"}
	if err := s.ConfirmPasswordReset(ctx, req); gateway.Message(err) != "Token pa valid oswa ekspire" {
		t.Fatalf("expired link = %v", err)
	}
}
