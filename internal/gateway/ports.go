// Package gateway defines the ports the dashboard uses to talk to the
// Cash Ti Machann backend. Every call carries the caller's API token.
package gateway

import (
	"context"

	"cashtimachann/internal/core"
)

// Ports for the remote API, grouped by concern.
type (
	Auth interface {
		Login(ctx context.Context, email, password string) (core.LoginResult, error)
		Logout(ctx context.Context, token string) error
		Profile(ctx context.Context, token string) (core.UserData, error)
		RequestVerification(ctx context.Context, token string) error
	}

	// Registration covers the public account flows; none of them needs a token.
	Registration interface {
		Register(ctx context.Context, req core.RegistrationRequest) (core.RegistrationResult, error)
		CheckUsername(ctx context.Context, username string) (core.UsernameAvailability, error)
		VerifyEmail(ctx context.Context, email, code string) error
		ResendVerification(ctx context.Context, email string) error
		ForgotPassword(ctx context.Context, email string) error
		ConfirmPasswordReset(ctx context.Context, req core.PasswordResetConfirm) error
	}

	Transactions interface {
		ListTransactions(ctx context.Context, token string, limit int) ([]core.Transaction, error)
		TransactionStats(ctx context.Context, token string) (core.TransactionStats, error)
		TransactionDetails(ctx context.Context, token string, id core.ID) (core.Transaction, error)
	}

	Payments interface {
		SendMoney(ctx context.Context, token string, req core.TransferRequest) (core.PaymentReceipt, error)
		TopUp(ctx context.Context, token string, req core.TopUpRequest) (core.PaymentReceipt, error)
		PayBill(ctx context.Context, token string, req core.BillPaymentRequest) (core.PaymentReceipt, error)
		CardDeposit(ctx context.Context, token string, req core.CardDepositRequest) (core.PaymentReceipt, error)
		MerchantPayment(ctx context.Context, token string, req core.MerchantPaymentRequest) (core.PaymentReceipt, error)
		AgentWithdrawal(ctx context.Context, token string, req core.AgentWithdrawalRequest) (core.PaymentReceipt, error)
		GenerateQR(ctx context.Context, token string, req core.QRGenerateRequest) (core.QRCode, error)
		ProcessQR(ctx context.Context, token string, req core.QRProcessRequest) (core.PaymentReceipt, error)
	}

	Security interface {
		PINStatus(ctx context.Context, token string) (core.PINStatus, error)
		SetPIN(ctx context.Context, token, pin, confirm string) error
		SecurityOverview(ctx context.Context, token string) (core.SecurityOverview, error)
		Enable2FA(ctx context.Context, token string) (core.TwoFactorSetup, error)
		Verify2FA(ctx context.Context, token, code string) error
	}

	Account interface {
		UpdateEmail(ctx context.Context, token, email string) error
		UpdatePhone(ctx context.Context, token, phone string) error
		ChangePassword(ctx context.Context, token string, req core.ChangePasswordRequest) error
		UserLanguage(ctx context.Context, token string) (core.Language, error)
		UpdateLanguage(ctx context.Context, token string, lang core.Language) error
		// SearchUsers returns directory matches; queries shorter than
		// core.MinSearchLength return nothing.
		SearchUsers(ctx context.Context, token, query string) ([]core.UserSearchResult, error)
	}

	Admin interface {
		DashboardStats(ctx context.Context, token string) (core.AdminStats, error)
		RecentActivity(ctx context.Context, token string) ([]core.Activity, error)
		ListUsers(ctx context.Context, token string) ([]core.User, error)
		UserDetails(ctx context.Context, token string, id core.ID) (core.UserDetails, error)
		ToggleUserStatus(ctx context.Context, token string, id core.ID) error
		ResetPassword(ctx context.Context, token string, id core.ID) (string, error)
		CreateUser(ctx context.Context, token string, req core.CreateUserRequest) (core.User, error)
		UpdateUser(ctx context.Context, token string, id core.ID, req core.UpdateUserRequest) error
		ApproveDocument(ctx context.Context, token string, userID, documentID core.ID) error
		RejectDocument(ctx context.Context, token string, userID, documentID core.ID, reason string) error
		AdjustWallet(ctx context.Context, token string, userID core.ID, adj core.WalletAdjustment) (core.Wallet, error)
		ToggleWallet(ctx context.Context, token string, userID core.ID) error
		ListAllTransactions(ctx context.Context, token string, filter core.TransactionFilter) (core.TransactionPage, error)
		UpdateTransactionStatus(ctx context.Context, token string, id core.ID, status, reason string) error
	}

	// Gateway is the full remote API surface.
	Gateway interface {
		Auth
		Registration
		Transactions
		Payments
		Security
		Account
		Admin
	}
)
