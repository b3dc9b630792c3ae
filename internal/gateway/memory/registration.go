package memory

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
)

const (
	resetTTL      = time.Hour
	resetInterval = 120 * time.Second
)

// Dial codes the backend accepts at sign-up.
var registrationPrefixes = []string{"+509", "+1", "+33", "+56", "+52", "+55"}

type resetGrant struct {
	userID  core.ID
	expires time.Time
}

func apiErrCode(status int, code, msg string) error {
	return &gateway.APIError{Status: status, Message: msg, Code: code}
}

func newEmailCode() string {
	return fmt.Sprintf("%06d", rand.IntN(1_000_000))
}

// resetUID encodes a user id the way reset links carry it.
func resetUID(id core.ID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// byEmail finds an account by e-mail. The caller holds s.mu.
func (s *Store) byEmail(email string) *account {
	email = core.NormalizeEmail(email)
	for _, a := range s.accounts {
		if core.NormalizeEmail(a.user.Email) == email {
			return a
		}
	}
	return nil
}

func (s *Store) usernameTaken(name string) bool {
	for _, a := range s.accounts {
		if strings.EqualFold(a.user.Username, name) {
			return true
		}
	}
	return false
}

func (s *Store) Register(_ context.Context, req core.RegistrationRequest) (core.RegistrationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	required := []struct{ name, value string }{
		{"email", req.Email}, {"phone", req.Phone}, {"password", req.Password},
		{"first_name", req.FirstName}, {"last_name", req.LastName}, {"date_of_birth", req.DateOfBirth},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return core.RegistrationResult{}, apiErr(http.StatusBadRequest, "Kè a "+f.name+" obligatwa")
		}
	}
	phone := strings.NewReplacer(" ", "", "-", "").Replace(req.Phone)
	allowed := false
	for _, p := range registrationPrefixes {
		if strings.HasPrefix(phone, p) {
			allowed = true
			break
		}
	}
	if !allowed {
		return core.RegistrationResult{}, apiErrCode(http.StatusBadRequest, "UNSUPPORTED_COUNTRY_CODE",
			"Nimewo telefòn lan dwe soti nan youn nan peyi yo otorize yo")
	}
	if s.byEmail(req.Email) != nil {
		return core.RegistrationResult{}, apiErrCode(http.StatusBadRequest, "EMAIL_EXISTS", "Yon kont deja egziste ak email sa a")
	}
	if s.byPhoneOrEmail(phone) != nil {
		return core.RegistrationResult{}, apiErrCode(http.StatusBadRequest, "PHONE_EXISTS", "Yon kont deja egziste ak nimewo telefòn sa a")
	}

	username := strings.TrimSpace(req.Username)
	if username != "" {
		if s.usernameTaken(username) {
			return core.RegistrationResult{}, apiErrCode(http.StatusBadRequest, "USERNAME_EXISTS", "Non itilizatè sa a deja egziste")
		}
	} else {
		base := strings.Split(core.NormalizeEmail(req.Email), "@")[0]
		username = base
		for i := 1; s.usernameTaken(username); i++ {
			username = fmt.Sprintf("%s%d", base, i)
		}
	}

	id := core.ID(uuid.NewString())
	s.accounts[id] = &account{
		user: core.User{
			ID: id, Username: username, Email: core.NormalizeEmail(req.Email),
			FirstName: req.FirstName, LastName: req.LastName, PhoneNumber: core.NormalizePhone(phone),
			UserType: core.RoleClient, IsActive: false, DateJoined: s.now().UTC(),
		},
		password: req.Password,
		wallet:   core.Wallet{ID: core.ID("w-" + id), Currency: "HTG", IsActive: true},
		profile: core.Profile{
			Phone: core.NormalizePhone(phone), ResidenceCountryCode: req.ResidenceCountryCode,
			ResidenceCountryName: req.Country,
		},
		language: core.LanguageKreyol,
	}
	s.emailCodes[id] = newEmailCode()
	return core.RegistrationResult{
		Message:              "Kont ou kreye. Tcheke imèl ou pou kòd konfimasyon an.",
		UserID:               id,
		VerificationRequired: true,
	}, nil
}

func (s *Store) CheckUsername(_ context.Context, username string) (core.UsernameAvailability, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.UsernameAvailability{}, apiErr(http.StatusBadRequest, "Non itilizatè obligatwa")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usernameTaken(username) {
		return core.UsernameAvailability{Available: false, Message: "Non itilizatè sa a deja pran"}, nil
	}
	return core.UsernameAvailability{Available: true, Message: "Non itilizatè disponib"}, nil
}

func (s *Store) VerifyEmail(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email == "" || code == "" {
		return apiErr(http.StatusBadRequest, "Email ak kòd obligatwa")
	}
	a := s.byEmail(email)
	if a == nil {
		return apiErr(http.StatusBadRequest, "Email sa a pa egziste")
	}
	want, ok := s.emailCodes[a.user.ID]
	if !ok || want != code {
		return apiErr(http.StatusBadRequest, "Kòd konfimme a pa kòrèk")
	}
	delete(s.emailCodes, a.user.ID)
	a.user.IsActive = true
	return nil
}

func (s *Store) ResendVerification(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byEmail(email)
	if a == nil {
		return apiErr(http.StatusBadRequest, "Email sa a pa egziste")
	}
	if _, pending := s.emailCodes[a.user.ID]; !pending {
		return apiErr(http.StatusBadRequest, "Email sa a deja konfime")
	}
	s.emailCodes[a.user.ID] = newEmailCode()
	return nil
}

// ForgotPassword never tells whether the address has an account.
func (s *Store) ForgotPassword(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := core.NormalizeEmail(email)
	if key == "" {
		return apiErr(http.StatusBadRequest, "Email obligatwa")
	}
	now := s.now()
	if last, ok := s.resetAsked[key]; ok && now.Sub(last) < resetInterval {
		return apiErr(http.StatusTooManyRequests, "Tanpri tann kèk minit anvan ou mande yon lòt lyen.")
	}
	s.resetAsked[key] = now
	if a := s.byEmail(key); a != nil {
		s.resets[uuid.NewString()] = resetGrant{userID: a.user.ID, expires: now.Add(resetTTL)}
	}
	return nil
}

func (s *Store) ConfirmPasswordReset(_ context.Context, req core.PasswordResetConfirm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.UID == "" || req.Token == "" || req.NewPassword == "" {
		return apiErr(http.StatusBadRequest, "Done obligatwa yo manke")
	}
	if req.NewPassword != req.ConfirmPassword {
		return apiErr(http.StatusBadRequest, "Konfimasyon modpas la pa koresponn")
	}
	grant, ok := s.resets[req.Token]
	if !ok || resetUID(grant.userID) != req.UID || s.now().After(grant.expires) {
		return apiErr(http.StatusBadRequest, "Token pa valid oswa ekspire")
	}
	if !strongEnough(req.NewPassword) {
		return apiErr(http.StatusBadRequest, "Modpas dwe gen omwen 8 karaktè, yon chif, yon lèt, ak yon siy espesyal.")
	}
	a, err := s.find(grant.userID)
	if err != nil {
		return err
	}
	a.password = req.NewPassword
	delete(s.resets, req.Token)
	return nil
}

// strongEnough is the backend rule: 8 characters with a letter, a digit
// and a symbol.
func strongEnough(pwd string) bool {
	if len(pwd) < 8 {
		return false
	}
	var letter, digit, symbol bool
	for _, r := range pwd {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	return letter && digit && symbol
}

// EmailCode returns the pending verification code of email. Used by tests.
func (s *Store) EmailCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.byEmail(email); a != nil {
		return s.emailCodes[a.user.ID]
	}
	return ""
}

// ResetLink returns the uid and token of a live reset link for email.
// Used by tests.
func (s *Store) ResetLink(email string) (uid, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.byEmail(email)
	if a == nil {
		return "", ""
	}
	for tok, g := range s.resets {
		if g.userID == a.user.ID {
			return resetUID(g.userID), tok
		}
	}
	return "", ""
}
