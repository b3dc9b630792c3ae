package http

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"cashtimachann/internal/core"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
	"cashtimachann/internal/services"
)

// recipientSearchView lists the saved recipients matching a query followed
// by directory matches.
type recipientSearchView struct {
	Query     string
	Saved     []recipients.Recipient
	Directory []core.UserSearchResult
}

type recipientsView struct {
	Recipients []recipients.Recipient
}

// handleRecipients renders the caller's book. Missing names are looked up
// in the directory first; lookup failures are ignored.
func (s *Server) handleRecipients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	if s.book == nil {
		s.partial(r, "recipients", recipientsView{}).Write(w)
		return
	}
	if n, err := s.book.Hydrate(ctx, a.Session.UserID, services.SearchLookup(s.gw, a.Token)); err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Recipient hydration failed", applog.FieldError, err.Error())
	} else if n > 0 {
		applog.FromContext(ctx).DebugContext(ctx, "Recipients hydrated", "count", n, applog.FieldOperation, applog.OpHydrate)
	}
	list, err := s.book.List(ctx, a.Session.UserID)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "recipients", recipientsView{Recipients: list}).Write(w)
}

// handleRecipientSearch backs the recipient autocomplete of the transfer
// form, which sends its input as "receiver".
func (s *Server) handleRecipientSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	query := r.URL.Query()
	q := strings.TrimSpace(query.Get("q"))
	if q == "" {
		q = strings.TrimSpace(query.Get("receiver"))
	}
	view := recipientSearchView{Query: q}

	if s.book != nil {
		saved, err := s.book.Search(ctx, a.Session.UserID, q)
		if err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Recipient search failed", applog.FieldError, err.Error())
		}
		view.Saved = saved
	}
	if utf8.RuneCountInString(q) >= core.MinSearchLength {
		results, err := s.gw.SearchUsers(ctx, a.Token, q)
		if err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Directory search failed", applog.FieldError, err.Error())
		}
		view.Directory = core.FilterSearchResults(results, a.Session.UserID)
	}
	s.partial(r, "recipient_search", view).Write(w)
}

func (s *Server) handleRecipientDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	if s.book == nil {
		NotFoundError("Destinatè a pa egziste").Write(w)
		return
	}
	if err := s.book.Remove(ctx, a.Session.UserID, r.PathValue("id")); err != nil {
		errorResponse(err).Write(w)
		return
	}
	list, err := s.book.List(ctx, a.Session.UserID)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "recipients", recipientsView{Recipients: list}).
		TriggerRecipientsChanged().
		TriggerSuccessNotification("Destinatè a retire").
		Write(w)
}
