package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
)

// conflictFields maps the backend sign-up conflicts to the form field they
// concern.
var conflictFields = map[string]string{
	"EMAIL_EXISTS":             "email",
	"PHONE_EXISTS":             "phone",
	"USERNAME_EXISTS":          "username",
	"UNSUPPORTED_COUNTRY_CODE": "phone",
}

// Accounts runs the public account flows: sign-up, e-mail confirmation and
// password reset.
type Accounts struct {
	gw     gateway.Registration
	now    func() time.Time
	logger *applog.Logger
}

func NewAccounts(gw gateway.Registration, logger *applog.Logger) *Accounts {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Accounts{
		gw:     gw,
		now:    time.Now,
		logger: logger.WithComponent(applog.ComponentAccounts),
	}
}

// WithClock overrides the time source. Used by tests.
func (a *Accounts) WithClock(now func() time.Time) *Accounts {
	a.now = now
	return a
}

// Register validates the sign-up form and creates the account. Form
// problems, including conflicts reported by the backend, come back as
// core.FieldErrors.
func (a *Accounts) Register(ctx context.Context, form core.RegistrationForm) (core.RegistrationResult, error) {
	form = form.Normalized()
	if errs := form.Validate(a.now()); errs != nil {
		return core.RegistrationResult{}, errs
	}
	res, err := a.gw.Register(ctx, form.Request())
	if err != nil {
		if field, ok := conflictFields[gateway.ErrorCode(err)]; ok {
			return core.RegistrationResult{}, core.FieldErrors{field: gateway.Message(err)}
		}
		a.logger.WarnContext(ctx, "Registration failed",
			applog.FieldOperation, applog.OpRegister,
			applog.FieldError, err.Error())
		return core.RegistrationResult{}, err
	}
	a.logger.InfoContext(ctx, "Account registered",
		applog.FieldOperation, applog.OpRegister,
		applog.FieldUserID, res.UserID.String(),
		"email", applog.MaskEmail(form.Email))
	return res, nil
}

// CheckUsername reports whether name can be chosen. Blank names are not
// sent to the backend and come back as neither available nor taken.
func (a *Accounts) CheckUsername(ctx context.Context, name string) (core.UsernameAvailability, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.UsernameAvailability{}, false, nil
	}
	if !core.ValidUsername(name) {
		return core.UsernameAvailability{Message: "3 a 30 karaktè: lèt, chif, pwen oswa _"}, true, nil
	}
	avail, err := a.gw.CheckUsername(ctx, name)
	if err != nil {
		return core.UsernameAvailability{}, false, err
	}
	return avail, true, nil
}

// VerifyEmail activates the account of email with the mailed code.
func (a *Accounts) VerifyEmail(ctx context.Context, email, code string) error {
	email = core.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" {
		return core.ErrMissingField
	}
	if err := core.ValidateVerificationCode(code); err != nil {
		return err
	}
	if err := a.gw.VerifyEmail(ctx, email, code); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "E-mail confirmed",
		applog.FieldOperation, applog.OpVerifyEmail,
		"email", applog.MaskEmail(email))
	return nil
}

func (a *Accounts) ResendVerification(ctx context.Context, email string) error {
	email = core.NormalizeEmail(email)
	if email == "" {
		return core.ErrMissingField
	}
	return a.gw.ResendVerification(ctx, email)
}

// ForgotPassword asks the backend to mail a reset link. Only throttling is
// reported back, so the answer never reveals whether the address exists.
func (a *Accounts) ForgotPassword(ctx context.Context, email string) error {
	email = core.NormalizeEmail(email)
	if !core.LooksLikeEmail(email) {
		return core.ErrMissingField
	}
	err := a.gw.ForgotPassword(ctx, email)
	if err == nil {
		a.logger.InfoContext(ctx, "Password reset requested",
			applog.FieldOperation, applog.OpForgotPassword,
			"email", applog.MaskEmail(email))
		return nil
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Status != http.StatusTooManyRequests && apiErr.Status < 500 {
		a.logger.WarnContext(ctx, "Password reset request rejected",
			applog.FieldOperation, applog.OpForgotPassword,
			applog.FieldError, err.Error())
		return nil
	}
	return err
}

// ResetPassword sets a new password from a reset link.
func (a *Accounts) ResetPassword(ctx context.Context, req core.PasswordResetConfirm) error {
	req.UID = strings.TrimSpace(req.UID)
	req.Token = strings.TrimSpace(req.Token)
	if err := req.Validate(); err != nil {
		return err
	}
	if err := a.gw.ConfirmPasswordReset(ctx, req); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "Password reset completed",
		applog.FieldOperation, applog.OpConfirmReset)
	return nil
}
