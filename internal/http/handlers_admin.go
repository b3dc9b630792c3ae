package http

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"cashtimachann/internal/amqp"
	"cashtimachann/internal/core"
	"cashtimachann/internal/export"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/services"
)

// maxExportRows caps CSV and spreadsheet exports.
const maxExportRows = 10000

type adminDashboardPage struct {
	Admin           core.User
	Stats           core.AdminStats
	StatsErr        string
	Activity        []core.Activity
	Users           services.UserPage
	UsersErr        string
	Filter          services.UserFilter
	Listing         services.TransactionListing
	TransactionsErr string
	SheetExport     bool
}

type adminUsersView struct {
	Users  services.UserPage
	Filter services.UserFilter
}

type adminTransactionsView struct {
	Listing     services.TransactionListing
	SheetExport bool
}

type adminUserView struct {
	Details core.UserDetails
}

// handleAdminDashboard renders the admin page. Each panel fails on its
// own; a backend error in one leaves the others usable.
func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	page := adminDashboardPage{Admin: a.Snapshot.Data.User, SheetExport: s.publisher != nil}

	stats, err := s.admin.Stats(ctx, a.Token)
	if err != nil {
		page.StatsErr = errorMessage(err)
	}
	page.Stats = stats

	activity, err := s.admin.RecentActivity(ctx, a.Token)
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Failed to load recent activity", applog.FieldError, err.Error())
	}
	page.Activity = activity

	page.Filter = ParseUserFilter(r.URL.Query())
	users, err := s.admin.Users(ctx, a.Token, a.Session.UserID, page.Filter, ParsePage(r.URL.Query()))
	if err != nil {
		page.UsersErr = errorMessage(err)
	}
	page.Users = users

	txs, err := s.admin.Transactions(ctx, a.Token, core.TransactionFilter{Page: 1})
	if err != nil {
		page.TransactionsErr = errorMessage(err)
	}
	page.Listing = txs

	s.render(w, r, http.StatusOK, "dashboard_admin.html", page)
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	stats, err := s.admin.Stats(r.Context(), a.Token)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "admin_stats", stats).Write(w)
}

func (s *Server) handleAdminActivity(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	activity, err := s.admin.RecentActivity(r.Context(), a.Token)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "admin_activity", activity).Write(w)
}

func (s *Server) usersView(r *http.Request, a *authContext) (adminUsersView, error) {
	q := r.URL.Query()
	f := ParseUserFilter(q)
	users, err := s.admin.Users(r.Context(), a.Token, a.Session.UserID, f, ParsePage(q))
	if err != nil {
		return adminUsersView{}, err
	}
	return adminUsersView{Users: users, Filter: f}, nil
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	view, err := s.usersView(r, authFrom(r.Context()))
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "admin_users", view).Write(w)
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	role, _ := core.ParseRole(form.Get("user_type"))
	req := core.CreateUserRequest{
		Username:  form.Get("username"),
		Email:     core.NormalizeEmail(form.Get("email")),
		FirstName: form.Get("first_name"),
		LastName:  form.Get("last_name"),
		UserType:  role,
		Password:  form.Secret("password"),
		Phone:     core.NormalizePhone(form.Get("phone")),
	}
	u, err := s.admin.CreateUser(ctx, a.Token, req)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerUsersChanged().
		TriggerFormReset().
		TriggerSuccessNotification("Itilizatè " + u.FullName() + " kreye").
		Write(w)
}

func (s *Server) userView(r *http.Request, a *authContext) *HTMXResponseBuilder {
	details, err := s.admin.UserDetails(r.Context(), a.Token, core.ID(r.PathValue("id")))
	if err != nil {
		return errorResponse(err)
	}
	return s.partial(r, "admin_user_details", adminUserView{Details: details})
}

func (s *Server) handleAdminUserDetails(w http.ResponseWriter, r *http.Request) {
	s.userView(r, authFrom(r.Context())).Write(w)
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	req := core.UpdateUserRequest{
		FirstName:   form.Get("first_name"),
		LastName:    form.Get("last_name"),
		Email:       core.NormalizeEmail(form.Get("email")),
		PhoneNumber: core.NormalizePhone(form.Get("phone_number")),
		UserType:    core.Role(form.Get("user_type")),
	}
	if err := s.admin.UpdateUser(ctx, a.Token, core.ID(r.PathValue("id")), req); err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.userView(r, a).
		TriggerUsersChanged().
		TriggerSuccessNotification("Enfòmasyon itilizatè a mete ajou").
		Write(w)
}

func (s *Server) handleAdminToggleUser(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	if err := s.admin.ToggleUserStatus(r.Context(), a.Token, core.ID(r.PathValue("id"))); err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.userView(r, a).
		TriggerUsersChanged().
		TriggerSuccessNotification("Estati itilizatè a chanje").
		Write(w)
}

func (s *Server) handleAdminResetPassword(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	msg, err := s.admin.ResetPassword(r.Context(), a.Token, core.ID(r.PathValue("id")))
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	if msg == "" {
		msg = "Modpas la reyinisyalize"
	}
	NewHTMXResponse().TriggerSuccessNotification(msg).Write(w)
}

func (s *Server) handleAdminApproveDocument(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	err := s.admin.ApproveDocument(r.Context(), a.Token, core.ID(r.PathValue("id")), core.ID(r.PathValue("doc")))
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.userView(r, a).
		TriggerUsersChanged().
		TriggerSuccessNotification("Dokiman an apwouve").
		Write(w)
}

func (s *Server) handleAdminRejectDocument(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	err = s.admin.RejectDocument(r.Context(), a.Token, core.ID(r.PathValue("id")), core.ID(r.PathValue("doc")), form.Get("reason"))
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.userView(r, a).
		TriggerUsersChanged().
		TriggerSuccessNotification("Dokiman an rejte").
		Write(w)
}

func (s *Server) handleAdminAdjustWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	form, amount, ok := readPayment(w, r)
	if !ok {
		return
	}
	adj := core.WalletAdjustment{
		Operation:   form.Get("operation"),
		Amount:      amount,
		Description: form.Get("description"),
	}
	wallet, err := s.admin.AdjustWallet(ctx, a.Token, core.ID(r.PathValue("id")), adj)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.payments, 1)
	s.userView(r, a).
		TriggerUsersChanged().
		TriggerTransactionsChanged().
		TriggerFormReset().
		TriggerSuccessNotification("Nouvo balans: " + wallet.Balance.String()).
		Write(w)
}

func (s *Server) handleAdminToggleWallet(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	if err := s.admin.ToggleWallet(r.Context(), a.Token, core.ID(r.PathValue("id"))); err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.userView(r, a).
		TriggerUsersChanged().
		TriggerSuccessNotification("Estati bous la chanje").
		Write(w)
}

// handleAdminPreferences saves the listing preferences and re-renders the
// user listing with them.
func (s *Server) handleAdminPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	perPage, _ := strconv.Atoi(form.Get("items_per_page"))
	prefs := core.AdminPreferences{
		ViewMode:     form.Get("view_mode"),
		Density:      form.Get("density"),
		SortBy:       form.Get("sort_by"),
		SortDir:      form.Get("sort_dir"),
		ItemsPerPage: perPage,
	}
	if _, err := s.admin.SavePreferences(ctx, a.Session.UserID, prefs); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to save preferences", applog.FieldError, err.Error())
		InternalServerError("Nou pa t kapab anrejistre preferans yo").Write(w)
		return
	}
	view, err := s.usersView(r, a)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "admin_users", view).
		TriggerSuccessNotification("Preferans yo anrejistre").
		Write(w)
}

func (s *Server) handleAdminTransactions(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	listing, err := s.admin.Transactions(r.Context(), a.Token, ParseTransactionFilter(r.URL.Query()))
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "admin_transactions", adminTransactionsView{Listing: listing, SheetExport: s.publisher != nil}).Write(w)
}

// handleAdminTransactionsCSV downloads every transaction matching the
// current filter.
func (s *Server) handleAdminTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	txs, err := s.admin.AllTransactions(ctx, a.Token, ParseTransactionFilter(r.URL.Query()), maxExportRows)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.exports, 1)
	applog.FromContext(ctx).InfoContext(ctx, "Transactions exported",
		applog.FieldOperation, applog.OpExport,
		"rows", len(txs))

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.AdminFilename(s.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(export.AdminCSV(txs)))
}

// handleAdminSheetExport queues the filtered listing for the spreadsheet
// worker.
func (s *Server) handleAdminSheetExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	if s.publisher == nil {
		ErrorResponse(http.StatusServiceUnavailable, "Ekspòtasyon nan Google Sheets pa disponib").Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	f := ParseTransactionFilter(r.Form)
	txs, err := s.admin.AllTransactions(ctx, a.Token, f, maxExportRows)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	msg := amqp.SheetExportMessage{
		RequestedBy: a.Session.Email,
		Filter:      f.Query().Encode(),
		Header:      export.AdminHeader,
		Rows:        export.AdminRows(txs),
	}
	if err := s.publisher.Publish(ctx, amqp.TypeSheetExport, msg); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to queue sheet export",
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err.Error())
		ErrorResponse(http.StatusBadGateway, "Nou pa t kapab voye ekspòtasyon an").Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.exports, 1)
	applog.FromContext(ctx).InfoContext(ctx, "Sheet export queued",
		applog.FieldOperation, applog.OpExport,
		"rows", len(txs))
	NewHTMXResponse().
		Status(http.StatusAccepted).
		TriggerSuccessNotification(strconv.Itoa(len(txs)) + " tranzaksyon voye nan Google Sheets").
		Write(w)
}

func (s *Server) handleAdminTransactionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	id := core.ID(r.PathValue("id"))
	if err := s.admin.UpdateTransactionStatus(ctx, a.Token, id, form.Get("status"), form.Get("reason")); err != nil {
		errorResponse(err).Write(w)
		return
	}
	applog.FromContext(ctx).InfoContext(ctx, "Transaction status updated",
		"transaction_id", id.String(),
		"status", form.Get("status"))
	NewHTMXResponse().
		TriggerTransactionsChanged().
		TriggerSuccessNotification("Estati tranzaksyon an chanje").
		Write(w)
}
