package memory

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"cashtimachann/internal/core"
)

func (s *Store) DashboardStats(_ context.Context, token string) (core.AdminStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return core.AdminStats{}, err
	}
	var st core.AdminStats
	for _, a := range s.accounts {
		active := a.user.IsActive
		switch a.user.UserType {
		case core.RoleClient:
			st.TotalClients++
			if active {
				st.ClientsActive++
			} else {
				st.ClientsInactive++
			}
		case core.RoleAgent:
			st.TotalAgents++
			if active {
				st.AgentsActive++
			} else {
				st.AgentsInactive++
			}
		case core.RoleEnterprise:
			st.TotalEnterprises++
			if active {
				st.EnterprisesActive++
			} else {
				st.EnterprisesInactive++
			}
		}
		for _, d := range a.documents {
			if d.Status == "pending" {
				st.PendingApprovals++
			}
		}
	}
	st.TotalUsers = st.TotalClients + st.TotalAgents + st.TotalEnterprises
	st.TotalTransactions = len(s.txs)
	for _, tx := range s.txs {
		st.TotalVolume.Cents += tx.Amount.Cents
	}
	return st, nil
}

func (s *Store) RecentActivity(_ context.Context, token string) ([]core.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return nil, err
	}
	var out []core.Activity
	for _, a := range s.accounts {
		out = append(out, core.Activity{
			Action: "Nouvo itilizatè enskri", User: a.user.FullName(),
			Time: a.user.DateJoined.Format("02/01/2006 15:04"), Timestamp: a.user.DateJoined.Unix(),
			Type: string(a.user.UserType),
		})
	}
	for _, tx := range s.txs {
		out = append(out, core.Activity{
			Action: "Tranzaksyon", User: tx.SenderName,
			Time: tx.CreatedAt.Format("02/01/2006 15:04"), Timestamp: tx.CreatedAt.Unix(),
			Type: tx.TransactionType,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > core.DefaultPageSize {
		out = out[:core.DefaultPageSize]
	}
	return out, nil
}

func (s *Store) userView(a *account) core.User {
	u := a.user
	w := a.wallet
	p := a.profile
	u.Wallet = &w
	u.Profile = &p
	return u
}

// ListUsers returns every account, newest first.
func (s *Store) ListUsers(_ context.Context, token string) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return nil, err
	}
	out := make([]core.User, 0, len(s.accounts))
	for _, a := range s.sortedAccounts() {
		out = append(out, s.userView(a))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateJoined.After(out[j].DateJoined) })
	return out, nil
}

func (s *Store) UserDetails(_ context.Context, token string, id core.ID) (core.UserDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return core.UserDetails{}, err
	}
	a, err := s.find(id)
	if err != nil {
		return core.UserDetails{}, err
	}
	d := core.UserDetails{User: s.userView(a), Wallet: a.wallet, Profile: a.profile, Documents: append([]core.Document(nil), a.documents...)}
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.involves(a, s.txs[i]) {
			d.Transactions = append(d.Transactions, s.txs[i])
		}
	}
	return d, nil
}

func (s *Store) ToggleUserStatus(_ context.Context, token string, id core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	me, err := s.admin(token)
	if err != nil {
		return err
	}
	a, err := s.find(id)
	if err != nil {
		return err
	}
	if a.user.ID == me.user.ID {
		return apiErr(http.StatusBadRequest, "Ou pa ka dezaktive pwòp kont ou")
	}
	a.user.IsActive = !a.user.IsActive
	return nil
}

func (s *Store) ResetPassword(_ context.Context, token string, id core.ID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	me, err := s.admin(token)
	if err != nil {
		return "", err
	}
	a, err := s.find(id)
	if err != nil {
		return "", err
	}
	if a.user.ID == me.user.ID {
		return "", apiErr(http.StatusBadRequest, "Ou pa ka lanse reset pou pwòp kont ou isit la")
	}
	if a.user.UserType == core.RoleAdmin {
		return "", apiErr(http.StatusBadRequest, "Ou pa ka lanse reset pou yon lòt admin")
	}
	return "Lyen reset modpas la voye pa email.", nil
}

func (s *Store) CreateUser(_ context.Context, token string, req core.CreateUserRequest) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return core.User{}, err
	}
	if err := req.Validate(); err != nil {
		return core.User{}, apiErr(http.StatusBadRequest, err.Error())
	}
	for _, a := range s.accounts {
		if strings.EqualFold(a.user.Email, req.Email) || a.user.Username == req.Username {
			return core.User{}, apiErr(http.StatusBadRequest, "Itilizatè deja egziste")
		}
	}
	id := core.ID(uuid.NewString())
	a := &account{
		user: core.User{
			ID: id, Username: req.Username, Email: core.NormalizeEmail(req.Email),
			FirstName: req.FirstName, LastName: req.LastName, PhoneNumber: core.NormalizePhone(req.Phone),
			UserType: req.UserType, IsActive: true, DateJoined: s.now().UTC(),
		},
		password: req.Password,
		wallet:   core.Wallet{ID: core.ID("w-" + id), Currency: "HTG", IsActive: true},
		profile:  core.Profile{VerificationStatus: "pending", Phone: core.NormalizePhone(req.Phone)},
		language: core.LanguageKreyol,
	}
	s.accounts[id] = a
	return s.userView(a), nil
}

func (s *Store) UpdateUser(_ context.Context, token string, id core.ID, req core.UpdateUserRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return apiErr(http.StatusBadRequest, err.Error())
	}
	a, err := s.find(id)
	if err != nil {
		return err
	}
	if req.FirstName != "" {
		a.user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		a.user.LastName = req.LastName
	}
	if req.Email != "" {
		a.user.Email = core.NormalizeEmail(req.Email)
	}
	if req.PhoneNumber != "" {
		a.user.PhoneNumber = core.NormalizePhone(req.PhoneNumber)
		a.profile.Phone = a.user.PhoneNumber
	}
	if req.UserType != "" {
		a.user.UserType = req.UserType
	}
	return nil
}

func (s *Store) setDocumentStatus(token string, userID, documentID core.ID, status string) error {
	if _, err := s.admin(token); err != nil {
		return err
	}
	a, err := s.find(userID)
	if err != nil {
		return err
	}
	found := false
	for i := range a.documents {
		if documentID == "" || a.documents[i].ID == documentID {
			a.documents[i].Status = status
			found = true
		}
	}
	if !found && documentID != "" {
		return apiErr(http.StatusNotFound, "Dokiman pa jwenn")
	}
	a.profile.VerificationStatus = status
	return nil
}

func (s *Store) ApproveDocument(_ context.Context, token string, userID, documentID core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setDocumentStatus(token, userID, documentID, "verified")
}

func (s *Store) RejectDocument(_ context.Context, token string, userID, documentID core.ID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setDocumentStatus(token, userID, documentID, "rejected")
}

func (s *Store) AdjustWallet(_ context.Context, token string, userID core.ID, adj core.WalletAdjustment) (core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return core.Wallet{}, err
	}
	a, err := s.find(userID)
	if err != nil {
		return core.Wallet{}, err
	}
	if !a.wallet.IsActive {
		return core.Wallet{}, apiErr(http.StatusBadRequest, "Pòtmonnè a bloke, ou pa ka fè operasyon.")
	}
	if err := adj.Validate(a.wallet.Balance); err != nil {
		return core.Wallet{}, apiErr(http.StatusBadRequest, err.Error())
	}
	desc := adj.Description
	if desc == "" {
		desc = "Admin " + adj.Operation + " " + adj.Amount.Fixed() + " HTG"
	}
	if adj.Operation == core.OperationCredit {
		a.wallet.Balance.Cents += adj.Amount.Cents
		s.record("deposit", nil, a, adj.Amount, core.Money{}, desc)
	} else {
		a.wallet.Balance.Cents -= adj.Amount.Cents
		s.record("withdrawal", a, nil, adj.Amount, core.Money{}, desc)
	}
	return a.wallet, nil
}

func (s *Store) ToggleWallet(_ context.Context, token string, userID core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return err
	}
	a, err := s.find(userID)
	if err != nil {
		return err
	}
	a.wallet.IsActive = !a.wallet.IsActive
	return nil
}

// ListAllTransactions applies the admin filters server side, newest first.
func (s *Store) ListAllTransactions(_ context.Context, token string, f core.TransactionFilter) (core.TransactionPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return core.TransactionPage{}, err
	}
	f = f.Normalized()
	search := strings.ToLower(f.Search)
	var matched []core.Transaction
	for i := len(s.txs) - 1; i >= 0; i-- {
		tx := s.txs[i]
		if f.Status != "" && f.Status != "all" && tx.Status != f.Status {
			continue
		}
		if f.Type != "" && f.Type != "all" && tx.TransactionType != f.Type {
			continue
		}
		if f.UserType != "" && f.UserType != "all" && !s.senderHasRole(tx, core.Role(f.UserType)) {
			continue
		}
		day := tx.CreatedAt.Format("2006-01-02")
		if f.DateFrom != "" && day < f.DateFrom {
			continue
		}
		if f.DateTo != "" && day > f.DateTo {
			continue
		}
		if search != "" {
			hay := strings.ToLower(strings.Join([]string{tx.ReferenceNumber, tx.SenderName, tx.ReceiverName, tx.Description}, " "))
			if !strings.Contains(hay, search) {
				continue
			}
		}
		matched = append(matched, tx)
	}
	page, _ := core.Paginate(matched, f.Page, f.Limit)
	if f.Page > core.TotalPages(len(matched), f.Limit) {
		page = nil
	}
	return core.TransactionPage{Results: page, Count: len(matched)}, nil
}

func (s *Store) senderHasRole(tx core.Transaction, role core.Role) bool {
	for _, a := range s.accounts {
		name := a.user.FullName()
		if (name == tx.SenderName || name == tx.ReceiverName) && a.user.UserType == role {
			return true
		}
	}
	return false
}

func (s *Store) UpdateTransactionStatus(_ context.Context, token string, id core.ID, status, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.admin(token); err != nil {
		return err
	}
	switch status {
	case "pending", "completed", "failed", "cancelled":
	default:
		return apiErr(http.StatusBadRequest, "Estati pa valab")
	}
	for i := range s.txs {
		if s.txs[i].ID == id {
			s.txs[i].Status = status
			return nil
		}
	}
	return apiErr(http.StatusNotFound, "Tranzaksyon pa jwenn")
}
