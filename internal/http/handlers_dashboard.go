package http

import (
	"net/http"
	"sync/atomic"

	"cashtimachann/internal/core"
	"cashtimachann/internal/export"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
)

// statementLimit bounds the history fetched for statements and exports.
const statementLimit = 500

// dashboardPage is the data of the client, agent and enterprise pages.
type dashboardPage struct {
	Role            core.Role
	User            core.User
	Wallet          core.Wallet
	Profile         core.Profile
	Stats           *core.TransactionStats
	Transactions    []core.Transaction
	TransactionsErr string
	StatsErr        string
	PIN             *core.PINStatus
	Recipients      []recipients.Recipient
	Statement       *export.StatementPage
	Carriers        []string
	BillTypes       []string
}

func (s *Server) basePage(a *authContext) dashboardPage {
	snap := a.Snapshot
	page := dashboardPage{
		Role:         snap.Data.User.UserType,
		User:         snap.Data.User,
		Wallet:       snap.Data.Wallet,
		Profile:      snap.Data.Profile,
		Stats:        snap.Stats,
		Transactions: snap.Transactions,
		Carriers:     []string{"digicel", "natcom"},
		BillTypes:    []string{"electricity", "water", "internet", "tv"},
	}
	if snap.TransactionsErr != nil {
		page.TransactionsErr = errorMessage(snap.TransactionsErr)
	}
	if snap.StatsErr != nil {
		page.StatsErr = errorMessage(snap.StatsErr)
	}
	return page
}

// withRecipients adds the saved recipients; failures leave the list empty.
func (s *Server) withRecipients(r *http.Request, a *authContext, page *dashboardPage) {
	if s.book == nil {
		return
	}
	list, err := s.book.List(r.Context(), a.Session.UserID)
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to list recipients", applog.FieldError, err.Error())
		return
	}
	page.Recipients = list
}

// withStatement adds the first page of the unfiltered statement.
func (s *Server) withStatement(r *http.Request, a *authContext, page *dashboardPage) {
	txs, err := s.gw.ListTransactions(r.Context(), a.Token, statementLimit)
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to load statement", applog.FieldError, err.Error())
		txs = a.Snapshot.Transactions
	}
	st := export.Statement(txs, export.StatementFilter{}, 1)
	page.Statement = &st
}

func (s *Server) withPIN(r *http.Request, a *authContext, page *dashboardPage) {
	pin, err := s.payments.PINStatus(r.Context(), a.Token)
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to load PIN status", applog.FieldError, err.Error())
		return
	}
	page.PIN = &pin
}

func (s *Server) handleClientDashboard(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	page := s.basePage(a)
	s.withRecipients(r, a, &page)
	s.withStatement(r, a, &page)
	s.withPIN(r, a, &page)
	s.render(w, r, http.StatusOK, "dashboard_client.html", page)
}

func (s *Server) handleAgentDashboard(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	page := s.basePage(a)
	s.withRecipients(r, a, &page)
	s.withPIN(r, a, &page)
	s.render(w, r, http.StatusOK, "dashboard_agent.html", page)
}

func (s *Server) handleEnterpriseDashboard(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	page := s.basePage(a)
	s.withStatement(r, a, &page)
	s.render(w, r, http.StatusOK, "dashboard_enterprise.html", page)
}

// handleSummary renders the balance and stats cards.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	page := s.basePage(authFrom(r.Context()))
	s.partial(r, "summary", page).Write(w)
}

func (s *Server) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	page := s.basePage(authFrom(r.Context()))
	s.partial(r, "transactions", page).Write(w)
}

func (s *Server) handleTransactionDetails(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	details, err := s.payments.Details(r.Context(), a.Token, core.ID(r.PathValue("id")))
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Transaction details failed", applog.FieldError, err.Error())
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "transaction_details", details).Write(w)
}

func (s *Server) statementTransactions(r *http.Request, a *authContext) ([]core.Transaction, error) {
	return s.gw.ListTransactions(r.Context(), a.Token, statementLimit)
}

// handleStatement renders a filtered, paginated page of the statement.
func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	txs, err := s.statementTransactions(r, a)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	q := r.URL.Query()
	st := export.Statement(txs, ParseStatementFilter(q), ParsePage(q))
	s.partial(r, "statement", st).Write(w)
}

// handleStatementCSV downloads the filtered statement.
func (s *Server) handleStatementCSV(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	txs, err := s.statementTransactions(r, a)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	filtered := export.FilterStatement(txs, ParseStatementFilter(r.URL.Query()))
	atomic.AddInt64(&s.appMetrics.exports, 1)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Statement exported",
		applog.FieldOperation, applog.OpExport,
		"rows", len(filtered))

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.ClientFilename(a.Snapshot.Data.User.Username)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(export.ClientCSV(filtered)))
}

// handleRefresh drops the cached core data and re-renders the summary.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	snap, err := s.coreData.Refresh(r.Context(), a.Token, a.Session.Role)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	a.Snapshot = snap
	s.partial(r, "summary", s.basePage(a)).
		Trigger("dashboard:refreshed", struct{}{}).
		Write(w)
}

func (s *Server) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	if !s.coreData.RequestVerification(r.Context(), a.Token) {
		NewHTMXResponse().
			Status(http.StatusOK).
			TriggerErrorNotification("Nou pa t kapab voye demann verifikasyon an").
			Write(w)
		return
	}
	NewHTMXResponse().
		TriggerSuccessNotification("Demann verifikasyon voye. N ap kontakte w byento").
		Trigger("dashboard:refreshed", struct{}{}).
		Write(w)
}
