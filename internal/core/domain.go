package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	RoleAdmin      Role = "admin"
	RoleAgent      Role = "agent"
	RoleClient     Role = "client"
	RoleEnterprise Role = "enterprise"
)

type (
	// Role is the backend user_type.
	Role string

	// ID accepts both numeric and string identifiers on the wire.
	ID string

	User struct {
		ID          ID        `json:"id"`
		Username    string    `json:"username,omitempty"`
		Email       string    `json:"email"`
		PhoneNumber string    `json:"phone_number"`
		FirstName   string    `json:"first_name"`
		LastName    string    `json:"last_name"`
		UserType    Role      `json:"user_type"`
		IsActive    bool      `json:"is_active"`
		DateJoined  time.Time `json:"date_joined"`
		Profile     *Profile  `json:"profile,omitempty"`
		Wallet      *Wallet   `json:"wallet,omitempty"`
	}

	Wallet struct {
		ID       ID     `json:"id,omitempty"`
		Balance  Money  `json:"balance"`
		Currency string `json:"currency"`
		IsActive bool   `json:"is_active"`
	}

	Profile struct {
		VerificationStatus   string `json:"verification_status"`
		Phone                string `json:"phone,omitempty"`
		ResidenceCountryCode string `json:"residence_country_code,omitempty"`
		ResidenceCountryName string `json:"residence_country_name,omitempty"`
		IsEmailVerified      bool   `json:"is_email_verified"`
		IsPhoneVerified      bool   `json:"is_phone_verified"`
		ProfilePictureURL    string `json:"profile_picture_url,omitempty"`
		Language             string `json:"language,omitempty"`
	}

	// UserData is the aggregate returned by the profile endpoint.
	UserData struct {
		User    User    `json:"user"`
		Wallet  Wallet  `json:"wallet"`
		Profile Profile `json:"profile"`
	}

	Transaction struct {
		ID              ID        `json:"id"`
		ReferenceNumber string    `json:"reference_number"`
		TransactionType string    `json:"transaction_type"`
		SenderName      string    `json:"sender_name"`
		ReceiverName    string    `json:"receiver_name"`
		Amount          Money     `json:"amount"`
		Fee             Money     `json:"fee"`
		TotalAmount     Money     `json:"total_amount"`
		Currency        string    `json:"currency"`
		Status          string    `json:"status"`
		Description     string    `json:"description"`
		CreatedAt       time.Time `json:"created_at"`
		DisplayType     string    `json:"display_type,omitempty"`
	}

	TransactionStats struct {
		MonthlyTransactions int    `json:"monthly_transactions"`
		RecentTransaction   string `json:"recent_transaction"`
		Balance             Money  `json:"balance"`
		WalletID            string `json:"wallet_id"`
	}

	// TransactionPage is one page of the admin transaction listing.
	TransactionPage struct {
		Results []Transaction `json:"results"`
		Count   int           `json:"count"`
	}

	LoginResult struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}

	PaymentReceipt struct {
		Success          bool         `json:"success"`
		Message          string       `json:"message,omitempty"`
		ReferenceNumber  string       `json:"reference_number,omitempty"`
		ConfirmationCode string       `json:"confirmation_code,omitempty"`
		Fee              Money        `json:"fee"`
		NewBalance       Money        `json:"new_balance"`
		Transaction      *Transaction `json:"transaction,omitempty"`
	}

	QRCode struct {
		QRData      string `json:"qr_data"`
		Amount      Money  `json:"amount"`
		Description string `json:"description"`
	}

	PINStatus struct {
		HasPIN    bool `json:"has_pin"`
		PINLocked bool `json:"pin_locked"`
	}

	SecurityActivity struct {
		Action      string    `json:"action"`
		Description string    `json:"description"`
		IPAddress   string    `json:"ip_address"`
		CreatedAt   time.Time `json:"created_at"`
	}

	SecurityOverview struct {
		TwoFactorEnabled bool               `json:"two_factor_enabled"`
		HasPIN           bool               `json:"has_pin"`
		LastLogin        string             `json:"last_login"`
		RecentActivities []SecurityActivity `json:"recent_activities"`
	}

	TwoFactorSetup struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}

	Document struct {
		ID           ID        `json:"id"`
		DocumentType string    `json:"document_type"`
		Status       string    `json:"status"`
		FileURL      string    `json:"file_url"`
		UploadedAt   time.Time `json:"uploaded_at"`
	}

	// UserDetails is the admin view of a single account.
	UserDetails struct {
		User         User          `json:"user"`
		Wallet       Wallet        `json:"wallet"`
		Profile      Profile       `json:"profile"`
		Documents    []Document    `json:"documents"`
		Transactions []Transaction `json:"transactions"`
	}

	AdminStats struct {
		TotalUsers          int   `json:"totalUsers"`
		TotalClients        int   `json:"totalClients"`
		TotalAgents         int   `json:"totalAgents"`
		TotalEnterprises    int   `json:"totalEnterprises"`
		ClientsActive       int   `json:"clientsActive"`
		ClientsInactive     int   `json:"clientsInactive"`
		AgentsActive        int   `json:"agentsActive"`
		AgentsInactive      int   `json:"agentsInactive"`
		EnterprisesActive   int   `json:"merchantsActive"`
		EnterprisesInactive int   `json:"merchantsInactive"`
		PendingApprovals    int   `json:"pendingApprovals"`
		TotalTransactions   int   `json:"totalTransactions"`
		TotalVolume         Money `json:"totalVolume"`
	}

	// Activity is one line of the admin recent-activity feed.
	Activity struct {
		Action    string `json:"action"`
		User      string `json:"user"`
		Time      string `json:"time"`
		Timestamp int64  `json:"ts"`
		Type      string `json:"type"`
	}
)

var (
	ErrEmptyRecipient = errors.New("recipient is required")
	ErrSelfTransfer   = errors.New("cannot send money to yourself")
)

// ParseRole maps a backend user_type onto a known Role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleAgent, RoleClient, RoleEnterprise:
		return r, true
	default:
		return "", false
	}
}

// HomePath is the dashboard a user of this role lands on.
func (r Role) HomePath() string {
	switch r {
	case RoleClient, RoleAgent, RoleEnterprise, RoleAdmin:
		return "/dashboard/" + string(r)
	default:
		return "/login"
	}
}

func (r Role) String() string { return string(r) }

// FullName joins first and last name, falling back to username then email.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Phone prefers the profile phone over the account phone number.
func (u User) Phone() string {
	if u.Profile != nil && u.Profile.Phone != "" {
		return u.Profile.Phone
	}
	return u.PhoneNumber
}

// KYCStatus defaults to pending when the backend omits it.
func (u User) KYCStatus() string {
	if u.Profile == nil || u.Profile.VerificationStatus == "" {
		return "pending"
	}
	return u.Profile.VerificationStatus
}

// Balance is zero for users listed without a wallet.
func (u User) Balance() Money {
	if u.Wallet == nil {
		return Money{}
	}
	return u.Wallet.Balance
}

// Reference returns the reference number wherever the backend put it.
func (p PaymentReceipt) Reference() string {
	if p.ReferenceNumber != "" {
		return p.ReferenceNumber
	}
	if p.Transaction != nil {
		return p.Transaction.ReferenceNumber
	}
	return ""
}

// CurrencyOrDefault returns the currency, HTG when unset.
func (t Transaction) CurrencyOrDefault() string {
	if t.Currency == "" {
		return "HTG"
	}
	return t.Currency
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }
