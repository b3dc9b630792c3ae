package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRoleHomePath(t *testing.T) {
	cases := map[Role]string{
		RoleClient:     "/dashboard/client",
		RoleAgent:      "/dashboard/agent",
		RoleEnterprise: "/dashboard/enterprise",
		RoleAdmin:      "/dashboard/admin",
		Role("ghost"):  "/login",
		Role(""):       "/login",
	}
	for role, want := range cases {
		if got := role.HomePath(); got != want {
			t.Errorf("%q.HomePath() = %q, want %q", role, got, want)
		}
	}
	if r, ok := ParseRole(" Admin "); !ok || r != RoleAdmin {
		t.Fatalf("ParseRole should accept mixed case, got %q %v", r, ok)
	}
}

func TestDecodeUserData(t *testing.T) {
	body := `{
		"user": {"id": 42, "email": "a@b.ht", "phone_number": "37123456", "first_name": "Jan", "last_name": "Pyè", "user_type": "client"},
		"wallet": {"balance": "1500.25", "currency": "HTG", "is_active": true},
		"profile": {"verification_status": "verified", "residence_country_code": "HT"}
	}`
	var d UserData
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.User.ID != "42" {
		t.Errorf("ID = %q, want 42", d.User.ID)
	}
	if d.Wallet.Balance.Cents != 150025 {
		t.Errorf("Balance = %d", d.Wallet.Balance.Cents)
	}
	if d.User.FullName() != "Jan Pyè" {
		t.Errorf("FullName = %q", d.User.FullName())
	}
}

func TestUserDefaults(t *testing.T) {
	u := User{Username: "jan", PhoneNumber: "1"}
	if u.KYCStatus() != "pending" {
		t.Errorf("missing KYC should be pending, got %q", u.KYCStatus())
	}
	if u.FullName() != "jan" {
		t.Errorf("FullName fallback = %q", u.FullName())
	}
	u.Profile = &Profile{Phone: "2"}
	if u.Phone() != "2" {
		t.Errorf("profile phone should win, got %q", u.Phone())
	}
}

func TestLabels(t *testing.T) {
	if StatusLabel("completed") != "Konfime" || StatusLabel("weird") != "weird" {
		t.Fatal("status labels")
	}
	if TypeLabel(Transaction{TransactionType: "send"}) != "Voye" {
		t.Fatal("type label")
	}
	if TypeLabel(Transaction{TransactionType: "send", DisplayType: "Voye Lajan"}) != "Voye Lajan" {
		t.Fatal("display_type must take precedence")
	}
	if got := ConfirmationCode("3f2a9c1e-aa11-4b2c-9d8e-abcdef123456"); got != "EF123456" {
		t.Fatalf("ConfirmationCode = %q", got)
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "Kounye a"},
		{5 * time.Minute, "5 minit pase"},
		{3 * time.Hour, "3 è pase"},
		{50 * time.Hour, "2 jou pase"},
	}
	for _, tc := range cases {
		if got := FormatTimeAgo(now.Add(-tc.ago), now); got != tc.want {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.ago, got, tc.want)
		}
	}
}

func TestTransferPreflight(t *testing.T) {
	base := TransferRequest{ReceiverPhone: "37123456", Amount: Money{Cents: 5000}, PIN: "1234"}
	withPIN := PINStatus{HasPIN: true}

	tests := []struct {
		name    string
		req     TransferRequest
		balance Money
		pin     PINStatus
		want    error
	}{
		{"ok", base, Money{Cents: 10000}, withPIN, nil},
		{"no recipient", TransferRequest{Amount: base.Amount, PIN: "1234"}, Money{Cents: 10000}, withPIN, ErrEmptyRecipient},
		{"zero amount", TransferRequest{ReceiverPhone: "1", PIN: "1234"}, Money{Cents: 10000}, withPIN, ErrInvalidAmount},
		{"over balance", base, Money{Cents: 100}, withPIN, ErrInsufficientFunds},
		{"no pin set", base, Money{Cents: 10000}, PINStatus{}, ErrNoPIN},
		{"pin locked", base, Money{Cents: 10000}, PINStatus{HasPIN: true, PINLocked: true}, ErrPINLocked},
		{"short pin", TransferRequest{ReceiverPhone: "1", Amount: base.Amount, PIN: "12"}, Money{Cents: 10000}, withPIN, ErrInvalidPIN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Preflight(tt.balance, tt.pin)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Preflight() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	if err := ValidatePINChange("1234", "1235"); !errors.Is(err, ErrPINMismatch) {
		t.Errorf("mismatch: %v", err)
	}
	if err := ValidatePINChange("1234567", "1234567"); !errors.Is(err, ErrInvalidPIN) {
		t.Errorf("too long: %v", err)
	}
	if err := (CardDepositRequest{CardNumber: "4111 1111 1111 1111", ExpiryMonth: "12", ExpiryYear: "29", CVV: "123", CardholderName: "Jan", Amount: Money{Cents: 50_00}}).Validate(); !errors.Is(err, ErrAmountOutOfRange) {
		t.Errorf("card deposit min: %v", err)
	}
	if err := (MerchantPaymentRequest{MerchantCode: "m001234", Amount: Money{Cents: 1}}).Validate(); err != nil {
		t.Errorf("merchant code is case-insensitive: %v", err)
	}
	if err := (AgentWithdrawalRequest{AgentCode: "B001234", Amount: Money{Cents: 500_00}, PIN: "1234"}).Validate(); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("agent code: %v", err)
	}
	adj := WalletAdjustment{Operation: OperationDebit, Amount: Money{Cents: 2000}}
	if err := adj.Validate(Money{Cents: 1000}); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("debit over balance: %v", err)
	}
	if err := (WalletAdjustment{Operation: "steal", Amount: Money{Cents: 1}}).Validate(Money{}); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("operation: %v", err)
	}
	top := TopUpRequest{RecipientPhone: "41123456", Amount: Money{Cents: 100}}.WithDefaults()
	if top.Carrier != "natcom" {
		t.Errorf("carrier from prefix = %q", top.Carrier)
	}
	bill := BillPaymentRequest{}.WithDefaults()
	if bill.BillType != DefaultBillType || bill.ServiceProvider != DefaultServiceProvider {
		t.Errorf("bill defaults: %+v", bill)
	}
}
