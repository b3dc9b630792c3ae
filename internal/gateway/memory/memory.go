// Package memory is an in-process gateway used for development and tests.
// It mirrors the backend rules the dashboard depends on: token auth, PIN
// checks, balance checks and the admin listing filters.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "demo1234"

type account struct {
	user      core.User
	password  string
	wallet    core.Wallet
	profile   core.Profile
	pin       string
	pinLocked bool
	twoFactor bool
	language  core.Language
	documents []core.Document
}

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	accounts map[core.ID]*account
	tokens   map[string]core.ID
	txs      []core.Transaction
	qrCodes  map[string]core.QRCode
	qrOwner  map[string]core.ID
	seq      int

	emailCodes map[core.ID]string
	resets     map[string]resetGrant
	resetAsked map[string]time.Time
}

// New returns a store seeded with one account per role.
func New() *Store {
	s := &Store{
		now:      time.Now,
		accounts: map[core.ID]*account{},
		tokens:   map[string]core.ID{},
		qrCodes:  map[string]core.QRCode{},
		qrOwner:  map[string]core.ID{},

		emailCodes: map[core.ID]string{},
		resets:     map[string]resetGrant{},
		resetAsked: map[string]time.Time{},
	}
	s.seed()
	return s
}

// WithClock overrides the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) seed() {
	joined := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	add := func(id, email, first, last, phone string, role core.Role, balance int64, status string) {
		s.accounts[core.ID(id)] = &account{
			user: core.User{
				ID: core.ID(id), Username: strings.Split(email, "@")[0], Email: email,
				PhoneNumber: phone, FirstName: first, LastName: last,
				UserType: role, IsActive: true, DateJoined: joined,
			},
			password: DemoPassword,
			wallet:   core.Wallet{ID: core.ID("w" + id), Balance: core.Money{Cents: balance}, Currency: "HTG", IsActive: true},
			profile:  core.Profile{VerificationStatus: status, Phone: phone, ResidenceCountryCode: "HT", ResidenceCountryName: "Ayiti"},
			pin:      "1234",
			language: core.LanguageKreyol,
		}
	}
	add("1", "admin@cashtimachann.ht", "Admin", "CTM", "22000000", core.RoleAdmin, 0, "verified")
	add("2", "client@cashtimachann.ht", "Jan", "Pyè", "37123456", core.RoleClient, 1_500_00, "verified")
	add("3", "agent@cashtimachann.ht", "Mari", "Jozèf", "41123456", core.RoleAgent, 50_000_00, "verified")
	add("4", "enterprise@cashtimachann.ht", "Boutik", "Lakay", "36123456", core.RoleEnterprise, 20_000_00, "pending")
	add("5", "rose@cashtimachann.ht", "Roz", "Sen Lwi", "38123456", core.RoleClient, 300_00, "")
	s.accounts["5"].pin = ""
	s.accounts["4"].documents = []core.Document{{ID: "d1", DocumentType: "id_card", Status: "pending", UploadedAt: joined}}
}

// TokenFor logs a seeded account in without a password. Used by tests.
func (s *Store) TokenFor(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.user.Email, email) {
			tok := uuid.NewString()
			s.tokens[tok] = a.user.ID
			return tok
		}
	}
	return ""
}

func apiErr(status int, msg string) error {
	return &gateway.APIError{Status: status, Message: msg}
}

// authed resolves the token to its account. The caller holds s.mu.
func (s *Store) authed(token string) (*account, error) {
	if token == "" {
		return nil, gateway.ErrNoToken
	}
	id, ok := s.tokens[token]
	if !ok {
		return nil, gateway.ErrUnauthorized
	}
	a, ok := s.accounts[id]
	if !ok || !a.user.IsActive {
		return nil, gateway.ErrUnauthorized
	}
	return a, nil
}

func (s *Store) admin(token string) (*account, error) {
	a, err := s.authed(token)
	if err != nil {
		return nil, err
	}
	if a.user.UserType != core.RoleAdmin {
		return nil, apiErr(http.StatusForbidden, "Pa gen otorizasyon")
	}
	return a, nil
}

func (s *Store) find(id core.ID) (*account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, apiErr(http.StatusNotFound, "Itilizatè pa jwenn")
	}
	return a, nil
}

func (s *Store) byPhoneOrEmail(contact string) *account {
	email := core.NormalizeEmail(contact)
	phone := core.NormalizePhone(contact)
	for _, a := range s.accounts {
		if core.LooksLikeEmail(contact) {
			if core.NormalizeEmail(a.user.Email) == email {
				return a
			}
			continue
		}
		if phone != "" && core.NormalizePhone(a.user.PhoneNumber) == phone {
			return a
		}
	}
	return nil
}

func (s *Store) checkPIN(a *account, pin string) error {
	if a.pin == "" {
		return apiErr(http.StatusBadRequest, "Ou dwe kreye yon PIN anvan")
	}
	if a.pinLocked {
		return apiErr(http.StatusForbidden, "PIN ou bloke")
	}
	if pin != a.pin {
		return apiErr(http.StatusBadRequest, "PIN pa kòrèk")
	}
	return nil
}

// record appends a completed transaction. The caller holds s.mu.
func (s *Store) record(kind string, from, to *account, amount, fee core.Money, desc string) core.Transaction {
	s.seq++
	tx := core.Transaction{
		ID:              core.ID(uuid.NewString()),
		ReferenceNumber: fmt.Sprintf("TXN-%s-%04d", s.now().UTC().Format("20060102"), s.seq),
		TransactionType: kind,
		Amount:          amount,
		Fee:             fee,
		TotalAmount:     core.Money{Cents: amount.Cents + fee.Cents},
		Currency:        "HTG",
		Status:          "completed",
		Description:     desc,
		CreatedAt:       s.now().UTC(),
	}
	if from != nil {
		tx.SenderName = from.user.FullName()
	}
	if to != nil {
		tx.ReceiverName = to.user.FullName()
	}
	s.txs = append(s.txs, tx)
	return tx
}

func (s *Store) involves(a *account, tx core.Transaction) bool {
	name := a.user.FullName()
	return tx.SenderName == name || tx.ReceiverName == name
}

func (s *Store) debit(a *account, amount core.Money) error {
	if !a.wallet.IsActive {
		return apiErr(http.StatusBadRequest, "Pòtmonnè a bloke")
	}
	if amount.Cents > a.wallet.Balance.Cents {
		return apiErr(http.StatusBadRequest, "Balans pa sifi")
	}
	a.wallet.Balance.Cents -= amount.Cents
	return nil
}

func receipt(a *account, tx core.Transaction, msg string) core.PaymentReceipt {
	return core.PaymentReceipt{
		Success:          true,
		Message:          msg,
		ReferenceNumber:  tx.ReferenceNumber,
		ConfirmationCode: core.ConfirmationCode(tx.ID),
		Fee:              tx.Fee,
		NewBalance:       a.wallet.Balance,
		Transaction:      &tx,
	}
}

func (s *Store) Login(_ context.Context, email, password string) (core.LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if (strings.EqualFold(a.user.Email, email) || a.user.Username == email) && a.password == password {
			if !a.user.IsActive {
				return core.LoginResult{}, apiErr(http.StatusForbidden, "Kont ou dezaktive")
			}
			tok := uuid.NewString()
			s.tokens[tok] = a.user.ID
			return core.LoginResult{Token: tok, User: a.user}, nil
		}
	}
	return core.LoginResult{}, apiErr(http.StatusBadRequest, "Email oswa modpas pa kòrèk")
}

func (s *Store) Logout(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.authed(token); err != nil {
		return err
	}
	delete(s.tokens, token)
	return nil
}

func (s *Store) Profile(_ context.Context, token string) (core.UserData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.UserData{}, err
	}
	return core.UserData{User: a.user, Wallet: a.wallet, Profile: a.profile}, nil
}

func (s *Store) RequestVerification(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return err
	}
	if a.profile.VerificationStatus == "verified" {
		return apiErr(http.StatusBadRequest, "Kont ou deja verifye")
	}
	a.profile.VerificationStatus = "pending"
	return nil
}

func (s *Store) ListTransactions(_ context.Context, token string, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = core.DefaultPageSize
	}
	var out []core.Transaction
	for i := len(s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.involves(a, s.txs[i]) {
			out = append(out, s.txs[i])
		}
	}
	return out, nil
}

func (s *Store) TransactionStats(_ context.Context, token string) (core.TransactionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.TransactionStats{}, err
	}
	stats := core.TransactionStats{Balance: a.wallet.Balance, WalletID: a.wallet.ID.String(), RecentTransaction: "0 HTG"}
	since := s.now().Add(-30 * 24 * time.Hour)
	recentSet := false
	for i := len(s.txs) - 1; i >= 0; i-- {
		tx := s.txs[i]
		if !s.involves(a, tx) {
			continue
		}
		if tx.CreatedAt.After(since) {
			stats.MonthlyTransactions++
		}
		if !recentSet {
			sign := "-"
			if tx.ReceiverName == a.user.FullName() {
				sign = "+"
			}
			stats.RecentTransaction = sign + tx.Amount.Fixed() + " HTG"
			recentSet = true
		}
	}
	return stats, nil
}

func (s *Store) TransactionDetails(_ context.Context, token string, id core.ID) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.Transaction{}, err
	}
	for _, tx := range s.txs {
		if tx.ID == id && (a.user.UserType == core.RoleAdmin || s.involves(a, tx)) {
			return tx, nil
		}
	}
	return core.Transaction{}, apiErr(http.StatusNotFound, "Tranzaksyon pa jwenn")
}

var _ gateway.Gateway = (*Store)(nil)
