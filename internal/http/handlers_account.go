package http

import (
	"errors"
	"net/http"
	"net/url"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/middleware/ratelimit"
)

const (
	msgTooManyRequests = "Twòp tantativ. Eseye ankò nan yon minit"
	msgEmailConfirmed  = "Email konfime ak siksè. N ap voye ou sou paj koneksyon an."
	msgCodeResent      = "Nou voye yon nouvo kòd sou imèl ou."
	msgResetRequested  = "Si email egziste, nou voye yon lyen reset."
	msgPasswordReset   = "Modpas ou chanje. N ap voye ou sou paj koneksyon an."
	msgResetLink       = "Lyen reset la pa konplè. Mande yon nouvo lyen."
)

// accountPage backs every public account page: sign-up, e-mail
// confirmation and password reset.
type accountPage struct {
	Form          core.RegistrationForm
	Errors        core.FieldErrors
	Email         string
	UID           string
	Token         string
	Message       string
	Error         string
	Done          bool
	RedirectAfter string
}

type usernameStatus struct {
	Checked bool
	core.UsernameAvailability
}

func newSignupForm() core.RegistrationForm {
	return core.RegistrationForm{CountryCode: "HT", ResidenceCountry: "HT", IDType: core.IDNationalCard}
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.sessions.Load(r.Context(), r); err == nil && !sess.MFAPending {
		redirect(w, r, sess.Role.HomePath())
		return
	}
	s.render(w, r, http.StatusOK, "register.html", accountPage{Form: newSignupForm()})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	f, err := ReadForm(w, r)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "register.html", accountPage{Form: newSignupForm(), Error: "Fòma demann lan pa valab"})
		return
	}
	form := core.RegistrationForm{
		FirstName:        f.Get("first_name"),
		LastName:         f.Get("last_name"),
		DateOfBirth:      f.Get("date_of_birth"),
		Email:            f.Get("email"),
		Username:         f.Get("username"),
		CountryCode:      f.Get("country_code"),
		AreaCode:         f.Get("area_code"),
		PhoneNumber:      f.Get("phone"),
		Password:         f.Secret("password"),
		ConfirmPassword:  f.Secret("confirm_password"),
		Address:          f.Get("address"),
		City:             f.Get("city"),
		ResidenceCountry: f.Get("residence_country"),
		IDType:           f.Get("id_document_type"),
		IDNumber:         f.Get("id_document_number"),
		AgreeToTerms:     f.Get("agree_terms") != "",
	}

	_, err = s.accounts.Register(r.Context(), form)
	if err != nil {
		page := accountPage{Form: form.Normalized()}
		page.Form.Password, page.Form.ConfirmPassword = "", ""
		var fields core.FieldErrors
		status := http.StatusUnprocessableEntity
		if errors.As(err, &fields) {
			page.Errors = fields
			page.Error = "Tanpri korije erè yo anba a"
		} else {
			page.Error = errorMessage(err)
			status = accountErrorStatus(err)
		}
		s.render(w, r, status, "register.html", page)
		return
	}
	redirect(w, r, "/registration-success?email="+url.QueryEscape(core.NormalizeEmail(form.Email)))
}

// accountErrorStatus is the page status for a failed backend account call.
func accountErrorStatus(err error) int {
	var apiErr *gateway.APIError
	switch {
	case isValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
		return apiErr.Status
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleUsernameCheck(w http.ResponseWriter, r *http.Request) {
	avail, checked, err := s.accounts.CheckUsername(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Username check failed", applog.FieldError, err.Error())
		checked = false
	}
	s.partial(r, "username_status", usernameStatus{Checked: checked, UsernameAvailability: avail}).Write(w)
}

func (s *Server) handleRegistrationSuccess(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "registration_success.html", accountPage{Email: core.NormalizeEmail(r.URL.Query().Get("email"))})
}

func (s *Server) handleVerifyEmailPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "verify_email.html", accountPage{Email: core.NormalizeEmail(r.URL.Query().Get("email"))})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	f, err := ReadForm(w, r)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "verify_email.html", accountPage{Error: "Fòma demann lan pa valab"})
		return
	}
	page := accountPage{Email: core.NormalizeEmail(f.Get("email"))}
	if err := s.accounts.VerifyEmail(r.Context(), page.Email, f.Get("code")); err != nil {
		page.Error = errorMessage(err)
		s.render(w, r, accountErrorStatus(err), "verify_email.html", page)
		return
	}
	page.Done, page.Message, page.RedirectAfter = true, msgEmailConfirmed, "2"
	s.render(w, r, http.StatusOK, "verify_email.html", page)
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	f, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòma demann lan pa valab").Write(w)
		return
	}
	if err := s.accounts.ResendVerification(r.Context(), f.Get("email")); err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "account_notice", msgCodeResent).TriggerSuccessNotification(msgCodeResent).Write(w)
}

func (s *Server) handleForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "forgot_password.html", accountPage{})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	f, err := ReadForm(w, r)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "forgot_password.html", accountPage{Error: "Fòma demann lan pa valab"})
		return
	}
	page := accountPage{Email: core.NormalizeEmail(f.Get("email"))}
	if err := s.accounts.ForgotPassword(r.Context(), page.Email); err != nil {
		if errors.Is(err, core.ErrMissingField) {
			page.Error = "Antre yon imèl ki valab"
		} else {
			page.Error = errorMessage(err)
		}
		s.render(w, r, accountErrorStatus(err), "forgot_password.html", page)
		return
	}
	page.Done, page.Message = true, msgResetRequested
	s.render(w, r, http.StatusOK, "forgot_password.html", page)
}

func (s *Server) handleResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := accountPage{UID: q.Get("uid"), Token: q.Get("token")}
	status := http.StatusOK
	if page.UID == "" || page.Token == "" {
		page.Error = msgResetLink
		status = http.StatusBadRequest
	}
	s.render(w, r, status, "reset_password.html", page)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	f, err := ReadForm(w, r)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "reset_password.html", accountPage{Error: "Fòma demann lan pa valab"})
		return
	}
	req := core.PasswordResetConfirm{
		UID:             f.Get("uid"),
		Token:           f.Get("token"),
		NewPassword:     f.Secret("new_password"),
		ConfirmPassword: f.Secret("confirm_password"),
	}
	page := accountPage{UID: req.UID, Token: req.Token}
	if err := s.accounts.ResetPassword(r.Context(), req); err != nil {
		page.Error = errorMessage(err)
		s.render(w, r, accountErrorStatus(err), "reset_password.html", page)
		return
	}
	page.Done, page.Message, page.RedirectAfter = true, msgPasswordReset, "2.5"
	s.render(w, r, http.StatusOK, "reset_password.html", page)
}

// throttleAccount limits the public account forms per client IP. They share
// the login limiter under their own key.
func (s *Server) throttleAccount(page string, next http.Handler) http.Handler {
	key := func(r *http.Request) string { return "account:" + s.securityDetector.ExtractClientIP(r) }
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
			"Account form rate limit exceeded", applog.FieldPath, r.URL.Path)
		if isHTMX(r) {
			ErrorResponse(http.StatusTooManyRequests, msgTooManyRequests).Write(w)
			return
		}
		s.render(w, r, http.StatusTooManyRequests, page, accountPage{Form: newSignupForm(), Error: msgTooManyRequests})
	}
	return ratelimit.Middleware(s.loginLimiter, key, onLimit)(next)
}
