package http

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
	"cashtimachann/internal/services"
	"cashtimachann/internal/twofactor"
)

// Message shown when the backend cannot be reached or answers garbage.
const msgServerError = "Erè nan koneksyon ak sèvè a"

func templateFuncs(now func() time.Time) template.FuncMap {
	return template.FuncMap{
		"money":        func(m core.Money) string { return m.String() },
		"fixed":        func(m core.Money) string { return m.Fixed() },
		"statusLabel":  core.StatusLabel,
		"typeLabel":    core.TypeLabel,
		"confirmation": core.ConfirmationCode,
		"timeAgo":      func(t time.Time) string { return core.FormatTimeAgo(t, now()) },
		"date": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("02/01/2006 15:04")
		},
		"phone":     core.FormatPhoneNumber,
		"maskPhone": applog.MaskPhone,
		"idemKey":   uuid.NewString,
		"add":       func(a, b int) int { return a + b },
		"sub":       func(a, b int) int { return a - b },
		"seq": func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i + 1
			}
			return out
		},
		"initials": func(name string) string {
			var b strings.Builder
			for _, f := range strings.Fields(name) {
				b.WriteString(strings.ToUpper(string([]rune(f)[:1])))
				if b.Len() >= 2 {
					break
				}
			}
			return b.String()
		},
		"list": func(v ...string) []string { return v },
		"pager": func(url, target string, page, totalPages int) map[string]any {
			return map[string]any{"URL": url, "Target": target, "Page": page, "TotalPages": totalPages}
		},
		"countries":       func() []core.Country { return core.Countries },
		"signupCountries": core.RegistrationCountries,
		"pageSizes":       core.PageSizes,
		"qr": func(content string) template.URL {
			uri, err := twofactor.QRCodeDataURI(content, 220)
			if err != nil {
				return ""
			}
			return template.URL(uri)
		},
	}
}

// render executes a template into a buffer first so a failing template
// never leaves a half-written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldComponent, applog.ComponentTemplate,
			"error_type", applog.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err.Error(),
			"template", name,
			applog.FieldComponent, applog.ComponentTemplate)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// partial renders a template into a builder so handlers can attach HTMX
// triggers to it.
func (s *Server) partial(r *http.Request, name string, data any) *HTMXResponseBuilder {
	if s.templates == nil {
		return InternalServerError("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Partial execution failed",
			applog.FieldError, err.Error(), "template", name)
		return InternalServerError("render error")
	}
	return NewHTMXResponse().BodyHTML(buf.String())
}

var validationMessages = []struct {
	err error
	msg string
}{
	{core.ErrInvalidAmount, "Montan an pa valab"},
	{core.ErrEmptyRecipient, "Antre nimewo telefòn oswa imèl destinatè a"},
	{core.ErrSelfTransfer, "Ou pa ka voye lajan bay tèt ou"},
	{core.ErrInsufficientFunds, "Balans ou pa ase pou tranzaksyon sa a"},
	{core.ErrNoPIN, "Ou dwe kreye yon PIN anvan ou voye lajan"},
	{core.ErrPINLocked, "PIN ou bloke. Kontakte sipò"},
	{core.ErrPINRequired, "Antre PIN ou"},
	{core.ErrInvalidPIN, "PIN nan dwe gen 4 a 6 chif"},
	{core.ErrPINMismatch, "PIN yo pa menm"},
	{core.ErrInvalidCard, "Nimewo kat la dwe gen 16 chif"},
	{core.ErrAmountOutOfRange, "Montan an pa nan limit yo"},
	{core.ErrInvalidCode, "Kòd la pa valab"},
	{core.ErrInvalidPhone, "Nimewo telefòn nan pa valab"},
	{core.ErrMissingField, "Tanpri ranpli tout chan obligatwa yo"},
	{core.ErrInvalidOperation, "Operasyon an dwe kredi oswa debi"},
	{core.ErrInvalidRole, "Tip itilizatè a pa valab"},
	{core.ErrWeakPassword, "Nouvo modpas la dwe gen omwen 8 karaktè"},
	{core.ErrPasswordPolicy, "Modpas la dwe gen yon lèt majiskil, yon lèt miniskil, yon chif ak yon siy espesyal"},
	{core.ErrPasswordMismatch, "Konfimasyon modpas la pa koresponn"},
	{core.ErrResetLink, "Lyen reset la pa konplè. Mande yon nouvo lyen."},
	{services.ErrInvalidStatus, "Estati a pa valab"},
	{recipients.ErrEmptyContact, "Destinatè a bezwen yon telefòn oswa yon imèl"},
	{twofactor.ErrInvalidCode, "Kòd 2FA a pa kòrèk"},
}

// isValidationError reports whether err was raised before reaching the backend.
func isValidationError(err error) bool {
	for _, v := range validationMessages {
		if errors.Is(err, v.err) {
			return true
		}
	}
	return false
}

// errorMessage maps an error onto the text shown to the user.
func errorMessage(err error) string {
	for _, v := range validationMessages {
		if errors.Is(err, v.err) {
			return v.msg
		}
	}
	if gateway.IsAuthError(err) {
		return "Sesyon ou ekspire. Tanpri konekte ankò"
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError && apiErr.Message != "" {
		return apiErr.Message
	}
	return msgServerError
}

// errorResponse builds the error fragment for err. Auth failures send the
// whole page back to the login screen.
func errorResponse(err error) *HTMXResponseBuilder {
	switch {
	case gateway.IsAuthError(err):
		return ErrorResponse(http.StatusUnauthorized, errorMessage(err)).Redirect("/login")
	case isValidationError(err):
		return UnprocessableEntityError(errorMessage(err))
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return UnprocessableEntityError(errorMessage(err))
	}
	return ErrorResponse(http.StatusBadGateway, msgServerError)
}
