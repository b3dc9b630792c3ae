package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultCarrier         = "digicel"
	DefaultBillType        = "electricity"
	DefaultServiceProvider = "EDH"

	OperationCredit = "credit"
	OperationDebit  = "debit"
)

var (
	ErrPINRequired       = errors.New("pin is required")
	ErrInvalidPIN        = errors.New("pin must be 4 to 6 digits")
	ErrPINMismatch       = errors.New("pin confirmation does not match")
	ErrNoPIN             = errors.New("create a pin before moving money")
	ErrPINLocked         = errors.New("pin is locked")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidCard       = errors.New("card number must be 16 digits")
	ErrInvalidCode       = errors.New("invalid code")
	ErrAmountOutOfRange  = errors.New("amount out of range")
	ErrInvalidOperation  = errors.New("operation must be credit or debit")
	ErrInvalidRole       = errors.New("invalid user type")
)

type (
	TransferRequest struct {
		ReceiverPhone string `json:"receiver_phone"`
		Amount        Money  `json:"amount"`
		Description   string `json:"description"`
		PIN           string `json:"pin"`
	}

	TopUpRequest struct {
		RecipientPhone string `json:"recipient_phone"`
		Carrier        string `json:"carrier"`
		Amount         Money  `json:"amount"`
		Message        string `json:"message"`
	}

	BillPaymentRequest struct {
		BillType        string `json:"bill_type"`
		ServiceProvider string `json:"service_provider"`
		AccountNumber   string `json:"account_number"`
		Amount          Money  `json:"amount"`
		PIN             string `json:"pin"`
	}

	CardDepositRequest struct {
		CardNumber     string `json:"card_number"`
		ExpiryMonth    string `json:"expiry_month"`
		ExpiryYear     string `json:"expiry_year"`
		CVV            string `json:"cvv"`
		CardholderName string `json:"cardholder_name"`
		Amount         Money  `json:"amount"`
	}

	MerchantPaymentRequest struct {
		MerchantCode string `json:"merchant_code"`
		Amount       Money  `json:"amount"`
		Description  string `json:"description"`
		PaymentType  string `json:"payment_type"`
	}

	AgentWithdrawalRequest struct {
		AgentCode string `json:"agent_code"`
		Amount    Money  `json:"amount"`
		PIN       string `json:"pin"`
	}

	QRGenerateRequest struct {
		Amount      Money  `json:"amount"`
		Description string `json:"description"`
	}

	QRProcessRequest struct {
		QRData string `json:"qr_data"`
		PIN    string `json:"pin"`
	}

	WalletAdjustment struct {
		Operation   string `json:"operation"`
		Amount      Money  `json:"amount"`
		Description string `json:"description,omitempty"`
	}

	UpdateUserRequest struct {
		FirstName   string `json:"first_name,omitempty"`
		LastName    string `json:"last_name,omitempty"`
		Email       string `json:"email,omitempty"`
		PhoneNumber string `json:"phone_number,omitempty"`
		UserType    Role   `json:"user_type,omitempty"`
	}

	ChangePasswordRequest struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}

	CreateUserRequest struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		UserType  Role   `json:"user_type"`
		Password  string `json:"password"`
		Phone     string `json:"phone"`
	}
)

// ValidatePIN accepts 4 to 6 ASCII digits.
func ValidatePIN(pin string) error {
	if pin == "" {
		return ErrPINRequired
	}
	if len(pin) < 4 || len(pin) > 6 || digitsOnly(pin) != pin {
		return ErrInvalidPIN
	}
	return nil
}

// ValidatePINChange validates a new PIN and its confirmation.
func ValidatePINChange(pin, confirm string) error {
	if pin != confirm {
		return ErrPINMismatch
	}
	return ValidatePIN(pin)
}

func (r TransferRequest) Validate() error {
	if strings.TrimSpace(r.ReceiverPhone) == "" {
		return ErrEmptyRecipient
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	return ValidatePIN(r.PIN)
}

// Preflight runs the checks the dashboard performs before calling the
// backend: balance coverage and PIN availability.
func (r TransferRequest) Preflight(balance Money, pin PINStatus) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Amount.Cents > balance.Cents {
		return ErrInsufficientFunds
	}
	if !pin.HasPIN {
		return ErrNoPIN
	}
	if pin.PINLocked {
		return ErrPINLocked
	}
	return nil
}

// WithDefaults fills the carrier from the number prefix, then digicel.
func (r TopUpRequest) WithDefaults() TopUpRequest {
	if r.Carrier == "" {
		r.Carrier = HaitiCarrier(r.RecipientPhone)
	}
	if r.Carrier == "" {
		r.Carrier = DefaultCarrier
	}
	return r
}

func (r TopUpRequest) Validate() error {
	if strings.TrimSpace(r.RecipientPhone) == "" {
		return fmt.Errorf("%w: recipient_phone", ErrMissingField)
	}
	if err := ValidatePhoneNumber(r.RecipientPhone, "HT"); err != nil {
		return err
	}
	return r.Amount.Validate()
}

func (r BillPaymentRequest) WithDefaults() BillPaymentRequest {
	if r.BillType == "" {
		r.BillType = DefaultBillType
	}
	if r.ServiceProvider == "" {
		r.ServiceProvider = DefaultServiceProvider
	}
	return r
}

func (r BillPaymentRequest) Validate() error {
	if strings.TrimSpace(r.AccountNumber) == "" {
		return fmt.Errorf("%w: account_number", ErrMissingField)
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	return ValidatePIN(r.PIN)
}

func (r CardDepositRequest) Validate() error {
	card := strings.ReplaceAll(r.CardNumber, " ", "")
	if card == "" || r.ExpiryMonth == "" || r.ExpiryYear == "" || r.CVV == "" || strings.TrimSpace(r.CardholderName) == "" {
		return ErrMissingField
	}
	if len(card) != 16 || digitsOnly(card) != card {
		return ErrInvalidCard
	}
	if r.Amount.Cents < 100_00 || r.Amount.Cents > 50_000_00 {
		return fmt.Errorf("%w: 100 to 50,000 HTG", ErrAmountOutOfRange)
	}
	return nil
}

// Normalized strips spaces from the card number.
func (r CardDepositRequest) Normalized() CardDepositRequest {
	r.CardNumber = strings.ReplaceAll(r.CardNumber, " ", "")
	return r
}

func (r MerchantPaymentRequest) Validate() error {
	code := strings.ToUpper(strings.TrimSpace(r.MerchantCode))
	if !strings.HasPrefix(code, "M") || len(code) != 7 {
		return fmt.Errorf("%w: merchant code must start with M and have 7 characters", ErrInvalidCode)
	}
	return r.Amount.Validate()
}

func (r MerchantPaymentRequest) WithDefaults() MerchantPaymentRequest {
	r.MerchantCode = strings.ToUpper(strings.TrimSpace(r.MerchantCode))
	if r.PaymentType == "" {
		r.PaymentType = "qr"
	}
	return r
}

func (r AgentWithdrawalRequest) Validate() error {
	code := strings.ToUpper(strings.TrimSpace(r.AgentCode))
	if !strings.HasPrefix(code, "A") || len(code) != 7 {
		return fmt.Errorf("%w: agent code must start with A and have 7 characters", ErrInvalidCode)
	}
	if r.Amount.Cents < 100_00 || r.Amount.Cents > 25_000_00 {
		return fmt.Errorf("%w: 100 to 25,000 HTG", ErrAmountOutOfRange)
	}
	return ValidatePIN(r.PIN)
}

func (r QRGenerateRequest) Validate() error {
	return r.Amount.Validate()
}

func (r QRProcessRequest) Validate() error {
	if strings.TrimSpace(r.QRData) == "" {
		return fmt.Errorf("%w: qr_data", ErrMissingField)
	}
	return ValidatePIN(r.PIN)
}

// Validate checks the adjustment against the current wallet balance.
func (a WalletAdjustment) Validate(balance Money) error {
	if a.Operation != OperationCredit && a.Operation != OperationDebit {
		return ErrInvalidOperation
	}
	if err := a.Amount.Validate(); err != nil {
		return err
	}
	if a.Operation == OperationDebit && a.Amount.Cents > balance.Cents {
		return ErrInsufficientFunds
	}
	return nil
}

func (r CreateUserRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" || strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return ErrMissingField
	}
	if _, ok := ParseRole(string(r.UserType)); !ok {
		return ErrInvalidRole
	}
	return nil
}

func (r UpdateUserRequest) Validate() error {
	if r.UserType != "" {
		if _, ok := ParseRole(string(r.UserType)); !ok {
			return ErrInvalidRole
		}
	}
	if r.Email != "" && !LooksLikeEmail(r.Email) {
		return fmt.Errorf("%w: email", ErrMissingField)
	}
	return nil
}

// ErrWeakPassword is returned for new passwords shorter than 8 characters.
var ErrWeakPassword = errors.New("new password must have at least 8 characters")

func (r ChangePasswordRequest) Validate() error {
	if r.CurrentPassword == "" || r.NewPassword == "" {
		return ErrMissingField
	}
	if len(r.NewPassword) < 8 {
		return ErrWeakPassword
	}
	return nil
}
