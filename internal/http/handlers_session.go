package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"cashtimachann/internal/core"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/session"
)

type phoneHint struct {
	Formatted string
	Error     string
	Country   core.Country
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleSessionStatus is polled by the page to show the inactivity
// warning. Polling does not count as activity.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Load(r.Context(), r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, session.Status{Warn: true, Expired: true})
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Status(sess))
}

// handleSessionKeepalive is the "stay connected" button of the warning.
func (s *Server) handleSessionKeepalive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.sessions.Load(ctx, r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, session.Status{Warn: true, Expired: true})
		return
	}
	if err := s.sessions.Touch(ctx, sess); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Failed to extend session", applog.FieldError, err.Error())
		writeJSON(w, http.StatusInternalServerError, session.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Status(sess))
}

// handlePhoneFormat renders the live hint under phone inputs.
func (s *Server) handlePhoneFormat(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := strings.ToUpper(strings.TrimSpace(q.Get("country")))
	if code == "" {
		code = "HT"
	}
	country, ok := core.FindCountry(code)
	if !ok {
		UnprocessableEntityError("Peyi a pa sipòte").Write(w)
		return
	}
	phone := strings.TrimSpace(q.Get("phone"))
	hint := phoneHint{Country: country}
	if phone != "" {
		hint.Formatted = core.FormatPhoneNumber(phone, code)
		if err := core.ValidatePhoneNumber(phone, code); err != nil {
			hint.Error = errorMessage(err)
		}
	}
	s.partial(r, "phone_hint", hint).Write(w)
}
