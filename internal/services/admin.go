package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
)

// UserFilter holds the admin user listing controls. Empty values mean
// "all", except Role which defaults to clients; dates are YYYY-MM-DD in
// the admin's location.
type UserFilter struct {
	Role        string
	Search      string
	Status      string
	Created     string
	CreatedFrom string
	CreatedTo   string
	KYC         string
	SortBy      string
	SortDir     string
}

const dateLayout = "2006-01-02"

func isAll(v string) bool {
	return v == "" || v == "all"
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// createdMatches applies the date-created filter. Users without a join
// date never match a date filter.
func createdMatches(u core.User, f UserFilter, now time.Time) bool {
	if isAll(f.Created) {
		return true
	}
	if u.DateJoined.IsZero() {
		return false
	}
	joined := u.DateJoined.In(now.Location())
	switch f.Created {
	case "today":
		return startOfDay(joined).Equal(startOfDay(now))
	case "week":
		return !joined.Before(now.Add(-7 * 24 * time.Hour))
	case "month":
		return !joined.Before(startOfDay(now).AddDate(0, -1, 0))
	case "year":
		return !joined.Before(startOfDay(now).AddDate(-1, 0, 0))
	case "custom":
		if from, err := time.ParseInLocation(dateLayout, f.CreatedFrom, now.Location()); err == nil && joined.Before(from) {
			return false
		}
		if to, err := time.ParseInLocation(dateLayout, f.CreatedTo, now.Location()); err == nil {
			end := to.Add(24*time.Hour - time.Millisecond)
			if joined.After(end) {
				return false
			}
		}
		return true
	}
	return true
}

// roleMatches lists clients by default; "all" covers every non-admin account.
func roleMatches(u core.User, role string) bool {
	switch role {
	case "":
		return u.UserType == core.RoleClient
	case "all":
		return u.UserType != core.RoleAdmin
	}
	return string(u.UserType) == role
}

func searchMatches(u core.User, q string) bool {
	if q == "" {
		return true
	}
	fields := []string{u.Username, u.Email, u.FirstName, u.LastName, u.PhoneNumber}
	if u.Profile != nil {
		fields = append(fields, u.Profile.Phone)
	}
	for _, v := range fields {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func sortName(u core.User) string {
	if n := strings.TrimSpace(u.FirstName + " " + u.LastName); n != "" {
		return strings.ToLower(n)
	}
	return strings.ToLower(u.Username)
}

// FilterUsers keeps the users of f.Role matching f and sorts them. The
// default order is date joined, newest first.
func FilterUsers(users []core.User, f UserFilter, now time.Time) []core.User {
	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]core.User, 0, len(users))
	for _, u := range users {
		if !roleMatches(u, f.Role) {
			continue
		}
		if !searchMatches(u, q) {
			continue
		}
		switch f.Status {
		case "active":
			if !u.IsActive {
				continue
			}
		case "inactive":
			if u.IsActive {
				continue
			}
		}
		if !createdMatches(u, f, now) {
			continue
		}
		if !isAll(f.KYC) && u.KYCStatus() != f.KYC {
			continue
		}
		out = append(out, u)
	}

	asc := f.SortDir == "asc"
	less := func(a, b core.User) int {
		switch f.SortBy {
		case "name":
			return strings.Compare(sortName(a), sortName(b))
		case "balance":
			return compareInt64(a.Balance().Cents, b.Balance().Cents)
		case "status":
			return compareInt64(boolInt(a.IsActive), boolInt(b.IsActive))
		default:
			return a.DateJoined.Compare(b.DateJoined)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := less(out[i], out[j])
		if asc {
			return c < 0
		}
		return c > 0
	})
	return out
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// PreferencesStore keeps per-admin listing preferences.
type PreferencesStore interface {
	GetAdminPreferences(ctx context.Context, userID core.ID) (core.AdminPreferences, error)
	SaveAdminPreferences(ctx context.Context, userID core.ID, p core.AdminPreferences) (core.AdminPreferences, error)
}

// UserPage is one page of the filtered user listing.
type UserPage struct {
	Users       []core.User
	Total       int
	Page        int
	TotalPages  int
	Preferences core.AdminPreferences
}

// TransactionListing is one page of the admin transaction listing.
type TransactionListing struct {
	Transactions []core.Transaction
	Count        int
	Page         int
	TotalPages   int
	Filter       core.TransactionFilter
}

var ErrInvalidStatus = errors.New("invalid transaction status")

var validTransactionStatuses = map[string]bool{
	"pending":   true,
	"completed": true,
	"failed":    true,
	"cancelled": true,
}

// Admin serves the admin dashboard.
type Admin struct {
	gw     gateway.Admin
	prefs  PreferencesStore
	now    func() time.Time
	logger *applog.Logger
	audit  *applog.AuditLogger
}

func NewAdmin(gw gateway.Admin, prefs PreferencesStore, logger *applog.Logger) *Admin {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentAdmin)
	return &Admin{
		gw:     gw,
		prefs:  prefs,
		now:    time.Now,
		logger: logger,
		audit:  applog.NewAuditLogger(logger),
	}
}

// WithClock overrides the time source. Used by tests.
func (a *Admin) WithClock(now func() time.Time) *Admin {
	a.now = now
	return a
}

// Preferences returns the admin's preferences, defaults when none are
// stored or the store is unavailable.
func (a *Admin) Preferences(ctx context.Context, adminID core.ID) core.AdminPreferences {
	if a.prefs == nil {
		return core.DefaultAdminPreferences()
	}
	p, err := a.prefs.GetAdminPreferences(ctx, adminID)
	if err != nil {
		a.logger.WarnContext(ctx, "Failed to load admin preferences", applog.FieldError, err.Error())
		return core.DefaultAdminPreferences()
	}
	return p
}

func (a *Admin) SavePreferences(ctx context.Context, adminID core.ID, p core.AdminPreferences) (core.AdminPreferences, error) {
	if a.prefs == nil {
		return p.Normalized(), nil
	}
	return a.prefs.SaveAdminPreferences(ctx, adminID, p)
}

// Users lists clients with the filter applied. Missing sort settings come
// from the admin's preferences, and so does the page size.
func (a *Admin) Users(ctx context.Context, token string, adminID core.ID, f UserFilter, page int) (UserPage, error) {
	prefs := a.Preferences(ctx, adminID)
	if f.SortBy == "" {
		f.SortBy = prefs.SortBy
	}
	if f.SortDir == "" {
		f.SortDir = prefs.SortDir
	}

	users, err := a.gw.ListUsers(ctx, token)
	if err != nil {
		return UserPage{}, err
	}
	filtered := FilterUsers(users, f, a.now())
	items, page := core.Paginate(filtered, page, prefs.ItemsPerPage)
	return UserPage{
		Users:       items,
		Total:       len(filtered),
		Page:        page,
		TotalPages:  core.TotalPages(len(filtered), prefs.ItemsPerPage),
		Preferences: prefs,
	}, nil
}

func (a *Admin) Transactions(ctx context.Context, token string, f core.TransactionFilter) (TransactionListing, error) {
	f = f.Normalized()
	page, err := a.gw.ListAllTransactions(ctx, token, f)
	if err != nil {
		return TransactionListing{}, err
	}
	return TransactionListing{
		Transactions: page.Results,
		Count:        page.Count,
		Page:         f.Page,
		TotalPages:   core.TotalPages(page.Count, f.Limit),
		Filter:       f,
	}, nil
}

// AllTransactions walks every page matching f, for exports.
func (a *Admin) AllTransactions(ctx context.Context, token string, f core.TransactionFilter, maxRows int) ([]core.Transaction, error) {
	f = f.Normalized()
	f.Page = 1
	f.Limit = 100
	var out []core.Transaction
	for {
		page, err := a.gw.ListAllTransactions(ctx, token, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		if len(page.Results) == 0 || len(out) >= page.Count || (maxRows > 0 && len(out) >= maxRows) {
			break
		}
		f.Page++
	}
	if maxRows > 0 && len(out) > maxRows {
		out = out[:maxRows]
	}
	return out, nil
}

func (a *Admin) Stats(ctx context.Context, token string) (core.AdminStats, error) {
	return a.gw.DashboardStats(ctx, token)
}

func (a *Admin) RecentActivity(ctx context.Context, token string) ([]core.Activity, error) {
	return a.gw.RecentActivity(ctx, token)
}

func (a *Admin) UserDetails(ctx context.Context, token string, id core.ID) (core.UserDetails, error) {
	return a.gw.UserDetails(ctx, token, id)
}

func (a *Admin) ToggleUserStatus(ctx context.Context, token string, id core.ID) error {
	if err := a.gw.ToggleUserStatus(ctx, token, id); err != nil {
		return err
	}
	a.audit.LogAdminAction(ctx, applog.OpToggleUser, id.String(), nil)
	return nil
}

func (a *Admin) ResetPassword(ctx context.Context, token string, id core.ID) (string, error) {
	msg, err := a.gw.ResetPassword(ctx, token, id)
	if err != nil {
		return "", err
	}
	a.audit.LogAdminAction(ctx, applog.OpResetPassword, id.String(), nil)
	return msg, nil
}

func (a *Admin) CreateUser(ctx context.Context, token string, req core.CreateUserRequest) (core.User, error) {
	if err := req.Validate(); err != nil {
		return core.User{}, err
	}
	u, err := a.gw.CreateUser(ctx, token, req)
	if err != nil {
		return core.User{}, err
	}
	a.audit.LogAdminAction(ctx, applog.OpCreateUser, u.ID.String(), applog.LogFields{applog.FieldRole: u.UserType.String()})
	return u, nil
}

func (a *Admin) UpdateUser(ctx context.Context, token string, id core.ID, req core.UpdateUserRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := a.gw.UpdateUser(ctx, token, id, req); err != nil {
		return err
	}
	a.audit.LogAdminAction(ctx, applog.OpUpdate, id.String(), nil)
	return nil
}

func (a *Admin) ApproveDocument(ctx context.Context, token string, userID, documentID core.ID) error {
	if err := a.gw.ApproveDocument(ctx, token, userID, documentID); err != nil {
		return err
	}
	a.audit.LogAdminAction(ctx, applog.OpApproveDoc, userID.String(), applog.LogFields{"document_id": documentID.String()})
	return nil
}

func (a *Admin) RejectDocument(ctx context.Context, token string, userID, documentID core.ID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: reason", core.ErrMissingField)
	}
	if err := a.gw.RejectDocument(ctx, token, userID, documentID, reason); err != nil {
		return err
	}
	a.audit.LogAdminAction(ctx, applog.OpRejectDoc, userID.String(), applog.LogFields{"document_id": documentID.String()})
	return nil
}

// AdjustWallet credits or debits a user's wallet. Debits above the
// current balance are refused before reaching the backend.
func (a *Admin) AdjustWallet(ctx context.Context, token string, userID core.ID, adj core.WalletAdjustment) (core.Wallet, error) {
	details, err := a.gw.UserDetails(ctx, token, userID)
	if err != nil {
		return core.Wallet{}, err
	}
	if err := adj.Validate(details.Wallet.Balance); err != nil {
		return core.Wallet{}, err
	}
	w, err := a.gw.AdjustWallet(ctx, token, userID, adj)
	if err != nil {
		return core.Wallet{}, err
	}
	a.audit.LogAdminAction(ctx, applog.OpAdjustWallet, userID.String(), applog.LogFields{
		"direction":             adj.Operation,
		applog.FieldAmountCents: adj.Amount.Cents,
	})
	return w, nil
}

func (a *Admin) ToggleWallet(ctx context.Context, token string, userID core.ID) error {
	if err := a.gw.ToggleWallet(ctx, token, userID); err != nil {
		return err
	}
	a.audit.LogAdminAction(ctx, applog.OpToggleWallet, userID.String(), nil)
	return nil
}

func (a *Admin) UpdateTransactionStatus(ctx context.Context, token string, id core.ID, status, reason string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if !validTransactionStatuses[status] {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := a.gw.UpdateTransactionStatus(ctx, token, id, status, reason); err != nil {
		return err
	}
	a.audit.LogAdminAction(ctx, applog.OpTransactionSet, "", applog.LogFields{"transaction_id": id.String(), "status": status})
	return nil
}
