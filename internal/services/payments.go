package services

import (
	"context"
	"fmt"
	"time"

	"cashtimachann/internal/amqp"
	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
	"cashtimachann/internal/recipients"
)

// Publisher sends dashboard events; *amqp.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// PaymentsGateway is the slice of the gateway the payment forms use.
type PaymentsGateway interface {
	gateway.Payments
	gateway.Security
	gateway.Transactions
}

// TransactionDetails is a transaction with the locally computed fee
// breakdown and confirmation code of the receipt view.
type TransactionDetails struct {
	Transaction      core.Transaction
	Fees             core.FeeBreakdown
	ConfirmationCode string
}

// Payments validates the money-movement forms before forwarding them.
type Payments struct {
	gw        PaymentsGateway
	coreData  *CoreData
	book      *recipients.Book
	publisher Publisher
	logger    *applog.Logger
	audit     *applog.AuditLogger
}

// NewPayments wires the payment service. publisher may be nil, in which
// case used recipients are saved synchronously.
func NewPayments(gw PaymentsGateway, coreData *CoreData, book *recipients.Book, publisher Publisher, logger *applog.Logger) *Payments {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentPayments)
	return &Payments{
		gw:        gw,
		coreData:  coreData,
		book:      book,
		publisher: publisher,
		logger:    logger,
		audit:     applog.NewAuditLogger(logger),
	}
}

// Transfer runs the send-money preflight (balance, PIN availability, PIN
// shape), submits the transfer and records the recipient in the sender's
// book.
func (p *Payments) Transfer(ctx context.Context, token string, sender core.User, req core.TransferRequest, recipientName string) (core.PaymentReceipt, error) {
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, err
	}
	if isSelf(sender, req.ReceiverPhone) {
		return core.PaymentReceipt{}, core.ErrSelfTransfer
	}

	snap, err := p.coreData.Refresh(ctx, token, "")
	if err != nil {
		return core.PaymentReceipt{}, fmt.Errorf("load balance: %w", err)
	}
	pin, err := p.gw.PINStatus(ctx, token)
	if err != nil {
		return core.PaymentReceipt{}, fmt.Errorf("check pin status: %w", err)
	}
	if err := req.Preflight(snap.Data.Wallet.Balance, pin); err != nil {
		return core.PaymentReceipt{}, err
	}

	rcpt, err := p.gw.SendMoney(ctx, token, req)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	p.coreData.Invalidate(token)
	p.audit.LogPaymentSubmitted(ctx, "send", req.Amount.Cents, req.ReceiverPhone, rcpt.Reference())

	p.recordRecipient(ctx, sender.ID, recipients.FromContact(recipientName, req.ReceiverPhone))
	return rcpt, nil
}

func isSelf(u core.User, contact string) bool {
	if core.LooksLikeEmail(contact) {
		return core.NormalizeEmail(contact) == core.NormalizeEmail(u.Email)
	}
	phone := core.NormalizePhone(contact)
	return phone != "" && phone == core.NormalizePhone(u.PhoneNumber)
}

// recordRecipient hands the used recipient to the worker, or saves it
// directly when no broker is configured or publishing fails.
func (p *Payments) recordRecipient(ctx context.Context, userID core.ID, r recipients.Recipient) {
	if p.publisher != nil {
		err := p.publisher.Publish(ctx, amqp.TypeRecipientUsed, amqp.RecipientUsedMessage{
			UserID: userID.String(),
			Name:   r.Name,
			Phone:  r.Phone,
			Email:  r.Email,
			UsedAt: time.Now().UTC(),
		})
		if err == nil {
			return
		}
		p.logger.WarnContext(ctx, "Failed to publish recipient event, saving directly", applog.FieldError, err.Error())
	}
	if p.book == nil {
		return
	}
	if _, err := p.book.Save(ctx, userID, r); err != nil {
		p.logger.WarnContext(ctx, "Failed to save recipient", applog.FieldError, err.Error())
	}
}

func (p *Payments) submitted(ctx context.Context, token, kind string, amount core.Money, target string, rcpt core.PaymentReceipt) {
	p.coreData.Invalidate(token)
	p.audit.LogPaymentSubmitted(ctx, kind, amount.Cents, target, rcpt.Reference())
}

func (p *Payments) TopUp(ctx context.Context, token string, req core.TopUpRequest) (core.PaymentReceipt, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, err
	}
	rcpt, err := p.gw.TopUp(ctx, token, req)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	p.submitted(ctx, token, "topup", req.Amount, req.RecipientPhone, rcpt)
	return rcpt, nil
}

func (p *Payments) PayBill(ctx context.Context, token string, req core.BillPaymentRequest) (core.PaymentReceipt, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, err
	}
	rcpt, err := p.gw.PayBill(ctx, token, req)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	p.submitted(ctx, token, "bill_payment", req.Amount, req.ServiceProvider, rcpt)
	return rcpt, nil
}

func (p *Payments) CardDeposit(ctx context.Context, token string, req core.CardDepositRequest) (core.PaymentReceipt, error) {
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, err
	}
	rcpt, err := p.gw.CardDeposit(ctx, token, req)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	p.submitted(ctx, token, "card_deposit", req.Amount, "", rcpt)
	return rcpt, nil
}

func (p *Payments) MerchantPayment(ctx context.Context, token string, req core.MerchantPaymentRequest) (core.PaymentReceipt, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, err
	}
	rcpt, err := p.gw.MerchantPayment(ctx, token, req)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	p.submitted(ctx, token, "merchant_payment", req.Amount, req.MerchantCode, rcpt)
	return rcpt, nil
}

func (p *Payments) AgentWithdrawal(ctx context.Context, token string, req core.AgentWithdrawalRequest) (core.PaymentReceipt, error) {
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, err
	}
	rcpt, err := p.gw.AgentWithdrawal(ctx, token, req)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	p.submitted(ctx, token, "agent_withdrawal", req.Amount, req.AgentCode, rcpt)
	return rcpt, nil
}

func (p *Payments) GenerateQR(ctx context.Context, token string, req core.QRGenerateRequest) (core.QRCode, error) {
	if err := req.Validate(); err != nil {
		return core.QRCode{}, err
	}
	return p.gw.GenerateQR(ctx, token, req)
}

func (p *Payments) ProcessQR(ctx context.Context, token string, req core.QRProcessRequest) (core.PaymentReceipt, error) {
	if err := req.Validate(); err != nil {
		return core.PaymentReceipt{}, err
	}
	rcpt, err := p.gw.ProcessQR(ctx, token, req)
	if err != nil {
		return core.PaymentReceipt{}, err
	}
	amount := core.Money{}
	if rcpt.Transaction != nil {
		amount = rcpt.Transaction.Amount
	}
	p.submitted(ctx, token, "qr_payment", amount, "", rcpt)
	return rcpt, nil
}

func (p *Payments) SetPIN(ctx context.Context, token, pin, confirm string) error {
	if err := core.ValidatePINChange(pin, confirm); err != nil {
		return err
	}
	return p.gw.SetPIN(ctx, token, pin, confirm)
}

func (p *Payments) PINStatus(ctx context.Context, token string) (core.PINStatus, error) {
	return p.gw.PINStatus(ctx, token)
}

func (p *Payments) SecurityOverview(ctx context.Context, token string) (core.SecurityOverview, error) {
	return p.gw.SecurityOverview(ctx, token)
}

func (p *Payments) Enable2FA(ctx context.Context, token string) (core.TwoFactorSetup, error) {
	return p.gw.Enable2FA(ctx, token)
}

func (p *Payments) Verify2FA(ctx context.Context, token, code string) error {
	if len(code) != 6 {
		return fmt.Errorf("%w: verification code must have 6 digits", core.ErrInvalidCode)
	}
	return p.gw.Verify2FA(ctx, token, code)
}

// Details loads one transaction with its fee breakdown.
func (p *Payments) Details(ctx context.Context, token string, id core.ID) (TransactionDetails, error) {
	tx, err := p.gw.TransactionDetails(ctx, token, id)
	if err != nil {
		return TransactionDetails{}, err
	}
	return TransactionDetails{
		Transaction:      tx,
		Fees:             core.ComputeFees(tx.Amount),
		ConfirmationCode: core.ConfirmationCode(tx.ID),
	}, nil
}
