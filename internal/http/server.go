package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/middleware/idempotency"
	"cashtimachann/internal/middleware/ratelimit"
	"cashtimachann/internal/middleware/security"
	"cashtimachann/internal/middleware/trace"
	"cashtimachann/internal/recipients"
	"cashtimachann/internal/services"
	"cashtimachann/internal/session"
	"cashtimachann/internal/twofactor"
	appweb "cashtimachann/web"
)

// Deps are the collaborators the server is built from. Publisher and
// LoginLimiter are optional.
type Deps struct {
	Gateway          gateway.Gateway
	Sessions         *session.Manager
	CoreData         *services.CoreData
	Payments         *services.Payments
	Admin            *services.Admin
	Accounts         *services.Accounts
	Recipients       *recipients.Book
	TwoFactor        *twofactor.Service
	Publisher        services.Publisher
	IdempotencyStore idempotency.Store
	IdempotencyTTL   time.Duration
	LoginLimiter     ratelimit.Allower
	Logger           *applog.Logger
}

// appMetrics holds application-specific counters.
type appMetrics struct {
	uptime        time.Time
	payments      int64
	logins        int64
	loginFailures int64
	exports       int64
}

type Server struct {
	http.Server
	templates *template.Template

	gw        gateway.Gateway
	sessions  *session.Manager
	coreData  *services.CoreData
	payments  *services.Payments
	admin     *services.Admin
	accounts  *services.Accounts
	book      *recipients.Book
	twoFactor *twofactor.Service
	publisher services.Publisher

	idempotency      *idempotency.Middleware
	loginLimiter     ratelimit.Allower
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	logger       *applog.Logger
	appMetrics   *appMetrics
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		gw:               deps.Gateway,
		sessions:         deps.Sessions,
		coreData:         deps.CoreData,
		payments:         deps.Payments,
		admin:            deps.Admin,
		accounts:         deps.Accounts,
		book:             deps.Recipients,
		twoFactor:        deps.TwoFactor,
		publisher:        deps.Publisher,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector: security.NewDetector(logger),
		logger:           logger,
		appMetrics:       &appMetrics{uptime: time.Now()},
		now:              time.Now,
	}
	if s.accounts == nil {
		s.accounts = services.NewAccounts(deps.Gateway, logger)
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	s.loginLimiter = deps.LoginLimiter
	if s.loginLimiter == nil {
		s.loginLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 5})
	}
	store := deps.IdempotencyStore
	if store == nil {
		store = idempotency.NewMemoryStore(10000)
	}
	ttl := deps.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s.idempotency = idempotency.New(store, ttl, sessionScope, logger)

	t, err := template.New("").Funcs(templateFuncs(s.now)).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err.Error())
		t = nil
	}
	s.templates = t

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.sameOrigin(handler)
	handler = postOnly(ratelimit.Middleware(s.rateLimiter, s.securityDetector.ExtractClientIP, nil))(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = s.securityDetector.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err.Error())
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.Handle("POST /login", s.throttleLogin(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("GET /login/admin", s.handleAdminLoginPage)
	mux.Handle("POST /login/admin", s.throttleLogin(http.HandlerFunc(s.handleAdminLogin)))
	mux.HandleFunc("GET /login/admin/verify", s.handleAdminVerifyPage)
	mux.Handle("POST /login/admin/verify", s.throttleLogin(http.HandlerFunc(s.handleAdminVerify)))
	mux.HandleFunc("POST /logout", s.handleLogout)

	// Public account flows
	mux.HandleFunc("GET /register", s.handleRegisterPage)
	mux.Handle("POST /register", s.throttleAccount("register.html", http.HandlerFunc(s.handleRegister)))
	mux.HandleFunc("GET /ui/register/username", s.handleUsernameCheck)
	mux.HandleFunc("GET /registration-success", s.handleRegistrationSuccess)
	mux.HandleFunc("GET /verify-email", s.handleVerifyEmailPage)
	mux.Handle("POST /verify-email", s.throttleAccount("verify_email.html", http.HandlerFunc(s.handleVerifyEmail)))
	mux.Handle("POST /verify-email/resend", s.throttleAccount("verify_email.html", http.HandlerFunc(s.handleResendVerification)))
	mux.HandleFunc("GET /forgot-password", s.handleForgotPasswordPage)
	mux.Handle("POST /forgot-password", s.throttleAccount("forgot_password.html", http.HandlerFunc(s.handleForgotPassword)))
	mux.HandleFunc("GET /reset-password", s.handleResetPasswordPage)
	mux.Handle("POST /reset-password", s.throttleAccount("reset_password.html", http.HandlerFunc(s.handleResetPassword)))

	// Session and form helpers
	mux.HandleFunc("GET /ui/session/status", s.handleSessionStatus)
	mux.HandleFunc("POST /ui/session/keepalive", s.handleSessionKeepalive)
	mux.HandleFunc("GET /ui/phone/format", s.handlePhoneFormat)

	customers := []core.Role{core.RoleClient, core.RoleAgent, core.RoleEnterprise}
	wallet := s.requireRole(customers...)
	clients := s.requireRole(core.RoleClient)
	moneyOut := s.requireRole(core.RoleClient, core.RoleAgent)
	admins := s.requireRole(core.RoleAdmin)

	// Dashboards
	mux.Handle("GET /dashboard/client", s.requireRole(core.RoleClient)(http.HandlerFunc(s.handleClientDashboard)))
	mux.Handle("GET /dashboard/agent", s.requireRole(core.RoleAgent)(http.HandlerFunc(s.handleAgentDashboard)))
	mux.Handle("GET /dashboard/enterprise", s.requireRole(core.RoleEnterprise)(http.HandlerFunc(s.handleEnterpriseDashboard)))
	mux.Handle("GET /dashboard/admin", admins(http.HandlerFunc(s.handleAdminDashboard)))

	// Wallet partials
	mux.Handle("GET /ui/summary", wallet(http.HandlerFunc(s.handleSummary)))
	mux.Handle("GET /ui/transactions", wallet(http.HandlerFunc(s.handleRecentTransactions)))
	mux.Handle("GET /ui/transactions/{id}", wallet(http.HandlerFunc(s.handleTransactionDetails)))
	mux.Handle("GET /ui/statement", wallet(http.HandlerFunc(s.handleStatement)))
	mux.Handle("GET /ui/statement.csv", wallet(http.HandlerFunc(s.handleStatementCSV)))
	mux.Handle("POST /ui/refresh", wallet(http.HandlerFunc(s.handleRefresh)))
	mux.Handle("POST /account/verification", wallet(http.HandlerFunc(s.handleRequestVerification)))

	// Recipients
	mux.Handle("GET /ui/recipients", moneyOut(http.HandlerFunc(s.handleRecipients)))
	mux.Handle("GET /ui/recipients/search", moneyOut(http.HandlerFunc(s.handleRecipientSearch)))
	mux.Handle("POST /ui/recipients/{id}/delete", moneyOut(http.HandlerFunc(s.handleRecipientDelete)))

	// Payments; every one of them is idempotent per session
	pay := func(h http.HandlerFunc) http.Handler { return s.idempotency.Wrap(h) }
	mux.Handle("POST /payments/transfer", moneyOut(pay(s.handleTransfer)))
	mux.Handle("POST /payments/topup", clients(pay(s.handleTopUp)))
	mux.Handle("POST /payments/bill", clients(pay(s.handleBillPayment)))
	mux.Handle("POST /payments/card-deposit", clients(pay(s.handleCardDeposit)))
	mux.Handle("POST /payments/merchant", clients(pay(s.handleMerchantPayment)))
	mux.Handle("POST /payments/withdrawal", clients(pay(s.handleAgentWithdrawal)))
	mux.Handle("POST /payments/qr/generate", wallet(http.HandlerFunc(s.handleGenerateQR)))
	mux.Handle("POST /payments/qr/process", clients(pay(s.handleProcessQR)))

	// Security and account settings
	mux.Handle("GET /ui/security", wallet(http.HandlerFunc(s.handleSecurity)))
	mux.Handle("POST /security/pin", wallet(http.HandlerFunc(s.handleSetPIN)))
	mux.Handle("POST /security/2fa/enable", wallet(http.HandlerFunc(s.handleEnable2FA)))
	mux.Handle("POST /security/2fa/verify", wallet(http.HandlerFunc(s.handleVerify2FA)))
	mux.Handle("POST /account/email", wallet(http.HandlerFunc(s.handleUpdateEmail)))
	mux.Handle("POST /account/phone", wallet(http.HandlerFunc(s.handleUpdatePhone)))
	mux.Handle("POST /account/password", wallet(http.HandlerFunc(s.handleChangePassword)))
	mux.Handle("POST /account/language", wallet(http.HandlerFunc(s.handleUpdateLanguage)))

	// Admin
	mux.Handle("GET /admin/stats", admins(http.HandlerFunc(s.handleAdminStats)))
	mux.Handle("GET /admin/activity", admins(http.HandlerFunc(s.handleAdminActivity)))
	mux.Handle("GET /admin/users", admins(http.HandlerFunc(s.handleAdminUsers)))
	mux.Handle("POST /admin/users", admins(http.HandlerFunc(s.handleAdminCreateUser)))
	mux.Handle("GET /admin/users/{id}", admins(http.HandlerFunc(s.handleAdminUserDetails)))
	mux.Handle("POST /admin/users/{id}", admins(http.HandlerFunc(s.handleAdminUpdateUser)))
	mux.Handle("POST /admin/users/{id}/toggle", admins(http.HandlerFunc(s.handleAdminToggleUser)))
	mux.Handle("POST /admin/users/{id}/reset-password", admins(http.HandlerFunc(s.handleAdminResetPassword)))
	mux.Handle("POST /admin/users/{id}/documents/{doc}/approve", admins(http.HandlerFunc(s.handleAdminApproveDocument)))
	mux.Handle("POST /admin/users/{id}/documents/{doc}/reject", admins(http.HandlerFunc(s.handleAdminRejectDocument)))
	mux.Handle("POST /admin/users/{id}/wallet/adjust", admins(pay(s.handleAdminAdjustWallet)))
	mux.Handle("POST /admin/users/{id}/wallet/toggle", admins(http.HandlerFunc(s.handleAdminToggleWallet)))
	mux.Handle("POST /admin/preferences", admins(http.HandlerFunc(s.handleAdminPreferences)))
	mux.Handle("GET /admin/transactions", admins(http.HandlerFunc(s.handleAdminTransactions)))
	mux.Handle("GET /admin/transactions.csv", admins(http.HandlerFunc(s.handleAdminTransactionsCSV)))
	mux.Handle("POST /admin/transactions/export-sheet", admins(http.HandlerFunc(s.handleAdminSheetExport)))
	mux.Handle("POST /admin/transactions/{id}/status", admins(http.HandlerFunc(s.handleAdminTransactionStatus)))
}

// postOnly applies mw to unsafe methods only; page loads and polling are
// not throttled.
func postOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionScope keys idempotency entries by session so two browsers never
// share a key space.
func sessionScope(r *http.Request) string {
	if c, err := r.Cookie(session.CookieName); err == nil {
		return c.Value
	}
	return "anonymous"
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		if l, ok := s.loginLimiter.(*ratelimit.Limiter); ok {
			l.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
