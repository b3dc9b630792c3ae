package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"sync/atomic"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/middleware/ratelimit"
	"cashtimachann/internal/services"
	"cashtimachann/internal/session"
)

const (
	msgBadCredentials = "Imèl oswa modpas pa kòrèk"
	msgAdminOnly      = "Aksè refize: Ou pa gen otorizasyon admin"
	msgUseAdminLogin  = "Kont admin yo dwe konekte sou paj admin lan"
	msgTooManyLogins  = "Twòp tantativ koneksyon. Eseye ankò nan yon minit"
	msgCodeFormat     = "Kòd 2FA dwe gen 6 chif"
)

type authContextKey struct{}

// authContext is what the role gate hands to the handlers behind it.
type authContext struct {
	Session  *session.Session
	Token    string
	Snapshot services.Snapshot
}

func authFrom(ctx context.Context) *authContext {
	a, _ := ctx.Value(authContextKey{}).(*authContext)
	return a
}

type loginPage struct {
	Admin bool
	Email string
	Error string
}

type verifyPage struct {
	Email    string
	Enrolled bool
	KeyURL   string
	Secret   string
	Error    string
}

type unauthorizedPage struct {
	Role core.Role
	Home string
}

// redirect sends the browser to path; HTMX requests get HX-Redirect so the
// whole page navigates instead of swapping a fragment.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Load(r.Context(), r)
	if err != nil || sess.MFAPending {
		redirect(w, r, "/login")
		return
	}
	redirect(w, r, sess.Role.HomePath())
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.sessions.Load(r.Context(), r); err == nil && !sess.MFAPending && sess.Role != core.RoleAdmin {
		redirect(w, r, sess.Role.HomePath())
		return
	}
	s.render(w, r, http.StatusOK, "login.html", loginPage{})
}

func (s *Server) handleAdminLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", loginPage{Admin: true})
}

// authenticate runs the backend login shared by both login forms.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, admin bool) (core.LoginResult, bool) {
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentAuth)
	page := loginPage{Admin: admin}

	f, err := ReadForm(w, r)
	if err != nil {
		page.Error = "Fòma demann lan pa valab"
		s.render(w, r, http.StatusBadRequest, "login.html", page)
		return core.LoginResult{}, false
	}
	page.Email = core.NormalizeEmail(f.Get("email"))
	password := f.Secret("password")
	if page.Email == "" || password == "" {
		page.Error = "Tanpri antre imèl ak modpas ou"
		s.render(w, r, http.StatusUnprocessableEntity, "login.html", page)
		return core.LoginResult{}, false
	}

	res, err := s.gw.Login(ctx, page.Email, password)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.loginFailures, 1)
		status := http.StatusUnauthorized
		var apiErr *gateway.APIError
		switch {
		case gateway.IsAuthError(err):
			page.Error = msgBadCredentials
		case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
			page.Error = msgBadCredentials
		default:
			page.Error = msgServerError
			status = http.StatusBadGateway
		}
		logger.WarnContext(ctx, "Login failed",
			"email", applog.MaskEmail(page.Email),
			applog.FieldError, err.Error(),
			applog.FieldOperation, applog.OpLogin)
		s.render(w, r, status, "login.html", page)
		return core.LoginResult{}, false
	}
	if _, ok := core.ParseRole(string(res.User.UserType)); !ok {
		page.Error = "Tip kont sa a pa rekonèt"
		s.discardToken(ctx, res.Token)
		s.render(w, r, http.StatusForbidden, "login.html", page)
		return core.LoginResult{}, false
	}
	return res, true
}

// discardToken logs a token out that will not be kept in a session.
func (s *Server) discardToken(ctx context.Context, token string) {
	if err := s.gw.Logout(ctx, token); err != nil {
		applog.FromContext(ctx).DebugContext(ctx, "Discarding token failed", applog.FieldError, err.Error())
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, ok := s.authenticate(w, r, false)
	if !ok {
		return
	}
	if res.User.UserType == core.RoleAdmin {
		s.discardToken(ctx, res.Token)
		s.render(w, r, http.StatusForbidden, "login.html", loginPage{Email: res.User.Email, Error: msgUseAdminLogin})
		return
	}
	if _, err := s.sessions.Create(ctx, w, res.Token, res.User, false); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to create session", applog.FieldError, err.Error())
		s.render(w, r, http.StatusInternalServerError, "login.html", loginPage{Email: res.User.Email, Error: msgServerError})
		return
	}
	atomic.AddInt64(&s.appMetrics.logins, 1)
	applog.FromContext(ctx).InfoContext(ctx, "User logged in",
		applog.FieldUserID, res.User.ID.String(),
		applog.FieldRole, res.User.UserType.String(),
		applog.FieldOperation, applog.OpLogin)
	http.Redirect(w, r, res.User.UserType.HomePath(), http.StatusSeeOther)
}

// handleAdminLogin is the first step of the admin login. The session stays
// MFA-pending until the TOTP code is verified.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, ok := s.authenticate(w, r, true)
	if !ok {
		return
	}
	if res.User.UserType != core.RoleAdmin {
		s.discardToken(ctx, res.Token)
		applog.FromContext(ctx).WarnContext(ctx, "Non-admin attempted admin login",
			applog.FieldUserID, res.User.ID.String(),
			applog.FieldRole, res.User.UserType.String())
		s.render(w, r, http.StatusForbidden, "login.html", loginPage{Admin: true, Email: res.User.Email, Error: msgAdminOnly})
		return
	}
	mfa := s.twoFactor != nil
	if !mfa {
		applog.FromContext(ctx).WarnContext(ctx, "Two-factor disabled, admin logged in with password only")
	}
	if _, err := s.sessions.Create(ctx, w, res.Token, res.User, mfa); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to create session", applog.FieldError, err.Error())
		s.render(w, r, http.StatusInternalServerError, "login.html", loginPage{Admin: true, Email: res.User.Email, Error: msgServerError})
		return
	}
	if !mfa {
		atomic.AddInt64(&s.appMetrics.logins, 1)
		http.Redirect(w, r, core.RoleAdmin.HomePath(), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login/admin/verify", http.StatusSeeOther)
}

// pendingAdmin returns the MFA-pending session of the request, redirecting
// when there is none.
func (s *Server) pendingAdmin(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Load(r.Context(), r)
	if err != nil {
		redirect(w, r, "/login/admin")
		return nil, false
	}
	if !sess.MFAPending || s.twoFactor == nil {
		redirect(w, r, sess.Role.HomePath())
		return nil, false
	}
	return sess, true
}

func (s *Server) verifyPageData(ctx context.Context, email string) (verifyPage, error) {
	page := verifyPage{Email: email}
	enrollment, err := s.twoFactor.Begin(ctx, email)
	if err != nil {
		return page, err
	}
	page.Enrolled = enrollment.Confirmed
	if !enrollment.Confirmed {
		keyURL, err := s.twoFactor.KeyURL(enrollment)
		if err != nil {
			return page, err
		}
		page.KeyURL = keyURL
		page.Secret = enrollment.Secret
	}
	return page, nil
}

func (s *Server) handleAdminVerifyPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.pendingAdmin(w, r)
	if !ok {
		return
	}
	page, err := s.verifyPageData(r.Context(), sess.Email)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Two-factor enrolment failed", applog.FieldError, err.Error())
		page.Error = msgServerError
		s.render(w, r, http.StatusInternalServerError, "admin_verify.html", page)
		return
	}
	s.render(w, r, http.StatusOK, "admin_verify.html", page)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s *Server) handleAdminVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := s.pendingAdmin(w, r)
	if !ok {
		return
	}
	f, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòma demann lan pa valab").Write(w)
		return
	}
	code := f.Get("code")
	if !isDigits(code, 6) {
		page, _ := s.verifyPageData(ctx, sess.Email)
		page.Error = msgCodeFormat
		s.render(w, r, http.StatusUnprocessableEntity, "admin_verify.html", page)
		return
	}
	if err := s.twoFactor.Verify(ctx, sess.Email, code); err != nil {
		atomic.AddInt64(&s.appMetrics.loginFailures, 1)
		applog.FromContext(ctx).WarnContext(ctx, "Admin two-factor verification failed",
			applog.FieldUserID, sess.UserID.String(),
			applog.FieldError, err.Error())
		page, _ := s.verifyPageData(ctx, sess.Email)
		page.Error = errorMessage(err)
		s.render(w, r, http.StatusUnauthorized, "admin_verify.html", page)
		return
	}
	sess.MFAPending = false
	if err := s.sessions.Touch(ctx, sess); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to save session", applog.FieldError, err.Error())
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	atomic.AddInt64(&s.appMetrics.logins, 1)
	applog.FromContext(ctx).InfoContext(ctx, "Admin logged in",
		applog.FieldUserID, sess.UserID.String(),
		applog.FieldOperation, applog.OpLogin)
	http.Redirect(w, r, core.RoleAdmin.HomePath(), http.StatusSeeOther)
}

// handleLogout revokes the token on the backend (best effort) and drops
// the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := "/login"
	if sess, err := s.sessions.Load(ctx, r); err == nil {
		if sess.Role == core.RoleAdmin {
			target = "/login/admin"
		}
		if token, err := s.sessions.Token(sess); err == nil {
			s.discardToken(ctx, token)
			s.coreData.Invalidate(token)
		}
		applog.FromContext(ctx).InfoContext(ctx, "User logged out",
			applog.FieldUserID, sess.UserID.String(),
			applog.FieldOperation, applog.OpLogout)
	}
	if err := s.sessions.Destroy(ctx, w, r); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Failed to destroy session", applog.FieldError, err.Error())
	}
	redirect(w, r, target)
}

// requireRole is the role gate. It resolves the session, loads the core
// user data and checks the backend role against roles. Users landing on a
// page of another role see the unauthorized panel, which sends them home.
func (s *Server) requireRole(roles ...core.Role) func(http.Handler) http.Handler {
	var expected core.Role
	if len(roles) == 1 {
		expected = roles[0]
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := applog.FromContext(ctx).WithComponent(applog.ComponentAuth)

			sess, err := s.sessions.Load(ctx, r)
			if err != nil {
				if !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrExpired) {
					logger.WarnContext(ctx, "Session lookup failed", applog.FieldError, err.Error())
				}
				redirect(w, r, "/login")
				return
			}
			if sess.MFAPending {
				redirect(w, r, "/login/admin/verify")
				return
			}
			token, err := s.sessions.Token(sess)
			if err != nil {
				logger.WarnContext(ctx, "Session token unreadable", applog.FieldError, err.Error())
				_ = s.sessions.Destroy(ctx, w, r)
				redirect(w, r, "/login")
				return
			}

			snap, err := s.coreData.Load(ctx, token, expected)
			if err != nil {
				logger.WarnContext(ctx, "Core data load failed, ending session",
					applog.FieldUserID, sess.UserID.String(),
					applog.FieldError, err.Error())
				s.coreData.Invalidate(token)
				_ = s.sessions.Destroy(ctx, w, r)
				redirect(w, r, "/login")
				return
			}

			actual := snap.Data.User.UserType
			if !slices.Contains(roles, actual) {
				if expected == "" {
					logger.WarnContext(ctx, "Role mismatch",
						"got", actual.String(),
						applog.FieldUserID, sess.UserID.String(),
						applog.FieldPath, r.URL.Path)
				}
				s.unauthorized(w, r, actual)
				return
			}
			sess.Role = actual
			if err := s.sessions.Touch(ctx, sess); err != nil {
				logger.WarnContext(ctx, "Failed to record activity", applog.FieldError, err.Error())
			}

			reqLogger := applog.FromContext(ctx).With(
				applog.FieldUserID, sess.UserID.String(),
				applog.FieldRole, actual.String())
			ctx = applog.WithContext(ctx, reqLogger)
			ctx = context.WithValue(ctx, authContextKey{}, &authContext{Session: sess, Token: token, Snapshot: snap})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, actual core.Role) {
	home := actual.HomePath()
	if isHTMX(r) {
		ErrorResponse(http.StatusForbidden, "Ou pa gen aksè a paj sa a").Redirect(home).Write(w)
		return
	}
	s.render(w, r, http.StatusForbidden, "unauthorized.html", unauthorizedPage{Role: actual, Home: home})
}

// throttleLogin limits login attempts per client IP.
func (s *Server) throttleLogin(next http.Handler) http.Handler {
	key := func(r *http.Request) string { return "ip:" + s.securityDetector.ExtractClientIP(r) }
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(),
			"Login rate limit exceeded", applog.FieldPath, r.URL.Path)
		s.render(w, r, http.StatusTooManyRequests, "login.html", loginPage{
			Admin: r.URL.Path != "/login",
			Error: msgTooManyLogins,
		})
	}
	return ratelimit.Middleware(s.loginLimiter, key, onLimit)(next)
}

// sameOrigin rejects unsafe requests whose Origin, or Referer when Origin
// is absent, names another host. Requests carrying neither pass.
func (s *Server) sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = r.Header.Get("Referer")
		}
		if origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity).WarnContext(r.Context(),
					"Cross-origin post rejected", "origin", origin, applog.FieldPath, r.URL.Path)
				http.Error(w, "cross-origin request rejected", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
