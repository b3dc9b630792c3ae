package memory

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"

	"cashtimachann/internal/core"
)

func (s *Store) SendMoney(_ context.Context, token string, req core.TransferRequest) (core.PaymentReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, apiErr(http.StatusBadRequest, err.Error())
	}
	if err := s.checkPIN(a, req.PIN); err != nil {
		return core.PaymentReceipt{}, err
	}
	to := s.byPhoneOrEmail(req.ReceiverPhone)
	if to == nil {
		return core.PaymentReceipt{}, apiErr(http.StatusNotFound, "Destinatè a pa jwenn")
	}
	if to.user.ID == a.user.ID {
		return core.PaymentReceipt{}, apiErr(http.StatusBadRequest, core.ErrSelfTransfer.Error())
	}
	fees := core.ComputeFees(req.Amount)
	if err := s.debit(a, core.Money{Cents: req.Amount.Cents + fees.Total.Cents}); err != nil {
		return core.PaymentReceipt{}, err
	}
	to.wallet.Balance.Cents += req.Amount.Cents
	tx := s.record("send", a, to, req.Amount, fees.Total, req.Description)
	return receipt(a, tx, "Lajan voye ak siksè"), nil
}

func (s *Store) TopUp(_ context.Context, token string, req core.TopUpRequest) (core.PaymentReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, apiErr(http.StatusBadRequest, err.Error())
	}
	if err := s.debit(a, req.Amount); err != nil {
		return core.PaymentReceipt{}, err
	}
	tx := s.record("topup", a, nil, req.Amount, core.Money{}, "Recharge "+req.Carrier+" "+req.RecipientPhone)
	return receipt(a, tx, "Recharge fèt ak siksè"), nil
}

func (s *Store) PayBill(_ context.Context, token string, req core.BillPaymentRequest) (core.PaymentReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, apiErr(http.StatusBadRequest, err.Error())
	}
	if err := s.checkPIN(a, req.PIN); err != nil {
		return core.PaymentReceipt{}, err
	}
	if err := s.debit(a, req.Amount); err != nil {
		return core.PaymentReceipt{}, err
	}
	tx := s.record("bill_payment", a, nil, req.Amount, core.Money{}, req.ServiceProvider+" "+req.AccountNumber)
	return receipt(a, tx, "Fakti peye ak siksè"), nil
}

func (s *Store) CardDeposit(_ context.Context, token string, req core.CardDepositRequest) (core.PaymentReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, apiErr(http.StatusBadRequest, err.Error())
	}
	a.wallet.Balance.Cents += req.Amount.Cents
	tx := s.record("deposit", nil, a, req.Amount, core.Money{}, "Depo kat ****"+req.CardNumber[len(req.CardNumber)-4:])
	return receipt(a, tx, "Depo fèt ak siksè"), nil
}

func (s *Store) MerchantPayment(_ context.Context, token string, req core.MerchantPaymentRequest) (core.PaymentReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, apiErr(http.StatusBadRequest, err.Error())
	}
	if err := s.debit(a, req.Amount); err != nil {
		return core.PaymentReceipt{}, err
	}
	tx := s.record("payment", a, nil, req.Amount, core.Money{}, "Machann "+req.MerchantCode)
	return receipt(a, tx, "Peman fèt ak siksè"), nil
}

func (s *Store) AgentWithdrawal(_ context.Context, token string, req core.AgentWithdrawalRequest) (core.PaymentReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, apiErr(http.StatusBadRequest, err.Error())
	}
	if err := s.checkPIN(a, req.PIN); err != nil {
		return core.PaymentReceipt{}, err
	}
	if err := s.debit(a, req.Amount); err != nil {
		return core.PaymentReceipt{}, err
	}
	tx := s.record("withdrawal", a, nil, req.Amount, core.Money{}, "Retrè ajan "+strings.ToUpper(req.AgentCode))
	return receipt(a, tx, "Retrè fèt ak siksè"), nil
}

func (s *Store) GenerateQR(_ context.Context, token string, req core.QRGenerateRequest) (core.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.QRCode{}, err
	}
	if err := req.Validate(); err != nil {
		return core.QRCode{}, apiErr(http.StatusBadRequest, err.Error())
	}
	qr := core.QRCode{QRData: "CTM:" + uuid.NewString(), Amount: req.Amount, Description: req.Description}
	s.qrCodes[qr.QRData] = qr
	s.qrOwner[qr.QRData] = a.user.ID
	return qr, nil
}

func (s *Store) ProcessQR(_ context.Context, token string, req core.QRProcessRequest) (core.PaymentReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, apiErr(http.StatusBadRequest, err.Error())
	}
	qr, ok := s.qrCodes[req.QRData]
	if !ok {
		return core.PaymentReceipt{}, apiErr(http.StatusNotFound, "Kòd QR pa valab")
	}
	owner := s.accounts[s.qrOwner[req.QRData]]
	if owner == nil || owner.user.ID == a.user.ID {
		return core.PaymentReceipt{}, apiErr(http.StatusBadRequest, core.ErrSelfTransfer.Error())
	}
	if err := s.checkPIN(a, req.PIN); err != nil {
		return core.PaymentReceipt{}, err
	}
	if err := s.debit(a, qr.Amount); err != nil {
		return core.PaymentReceipt{}, err
	}
	owner.wallet.Balance.Cents += qr.Amount.Cents
	delete(s.qrCodes, req.QRData)
	tx := s.record("payment", a, owner, qr.Amount, core.Money{}, qr.Description)
	return receipt(a, tx, "Peman QR fèt ak siksè"), nil
}

func (s *Store) PINStatus(_ context.Context, token string) (core.PINStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.PINStatus{}, err
	}
	return core.PINStatus{HasPIN: a.pin != "", PINLocked: a.pinLocked}, nil
}

func (s *Store) SetPIN(_ context.Context, token, pin, confirm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return err
	}
	if err := core.ValidatePINChange(pin, confirm); err != nil {
		return apiErr(http.StatusBadRequest, err.Error())
	}
	a.pin = pin
	a.pinLocked = false
	return nil
}

func (s *Store) SecurityOverview(_ context.Context, token string) (core.SecurityOverview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return core.SecurityOverview{}, err
	}
	return core.SecurityOverview{
		TwoFactorEnabled: a.twoFactor,
		HasPIN:           a.pin != "",
		LastLogin:        s.now().UTC().Format("02/01/2006 15:04"),
	}, nil
}

func (s *Store) Enable2FA(_ context.Context, token string) (core.TwoFactorSetup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.authed(token); err != nil {
		return core.TwoFactorSetup{}, err
	}
	return core.TwoFactorSetup{Message: "Kòd verifikasyon voye", Code: "123456"}, nil
}

func (s *Store) Verify2FA(_ context.Context, token, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return err
	}
	if code != "123456" {
		return apiErr(http.StatusBadRequest, "Kòd pa valab")
	}
	a.twoFactor = true
	return nil
}

func (s *Store) UpdateEmail(_ context.Context, token, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return err
	}
	email = core.NormalizeEmail(email)
	if !core.LooksLikeEmail(email) {
		return apiErr(http.StatusBadRequest, "Fòma email pa valab")
	}
	if other := s.byPhoneOrEmail(email); other != nil && other.user.ID != a.user.ID {
		return apiErr(http.StatusBadRequest, "Email deja egziste")
	}
	a.user.Email = email
	return nil
}

func (s *Store) UpdatePhone(_ context.Context, token, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return err
	}
	if err := core.ValidatePhoneNumber(phone, "HT"); err != nil {
		return apiErr(http.StatusBadRequest, "Nimewo telefòn pa valab")
	}
	if other := s.byPhoneOrEmail(phone); other != nil && other.user.ID != a.user.ID {
		return apiErr(http.StatusBadRequest, "Nimewo telefòn deja egziste")
	}
	a.user.PhoneNumber = core.NormalizePhone(phone)
	a.profile.Phone = a.user.PhoneNumber
	return nil
}

func (s *Store) ChangePassword(_ context.Context, token string, req core.ChangePasswordRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return apiErr(http.StatusBadRequest, err.Error())
	}
	if req.CurrentPassword != a.password {
		return apiErr(http.StatusBadRequest, "Modpas aktyèl la pa kòrèk")
	}
	a.password = req.NewPassword
	return nil
}

func (s *Store) UserLanguage(_ context.Context, token string) (core.Language, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return "", err
	}
	return a.language, nil
}

func (s *Store) UpdateLanguage(_ context.Context, token string, lang core.Language) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return err
	}
	if !lang.IsValid() {
		return apiErr(http.StatusBadRequest, "Lang pa valab")
	}
	a.language = lang
	return nil
}

// SearchUsers matches active clients by name, username, phone or email,
// excluding the caller, ten results at most.
func (s *Store) SearchUsers(_ context.Context, token, query string) ([]core.UserSearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.authed(token)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if len([]rune(query)) < core.MinSearchLength {
		return nil, nil
	}
	var out []core.UserSearchResult
	for _, other := range s.sortedAccounts() {
		u := other.user
		if u.ID == a.user.ID || u.UserType != core.RoleClient || !u.IsActive {
			continue
		}
		hay := strings.ToLower(strings.Join([]string{u.FirstName, u.LastName, u.Username, u.PhoneNumber, u.Email}, " "))
		if !strings.Contains(hay, query) {
			continue
		}
		out = append(out, core.UserSearchResult{
			ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Username: u.Username,
			PhoneNumber: u.PhoneNumber, Email: u.Email, FullName: strings.TrimSpace(u.FirstName + " " + u.LastName),
			UserType: u.UserType,
		})
		if len(out) == 10 {
			break
		}
	}
	return out, nil
}

func (s *Store) sortedAccounts() []*account {
	out := make([]*account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].user.ID < out[j].user.ID })
	return out
}
