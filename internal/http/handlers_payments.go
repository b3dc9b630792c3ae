package http

import (
	"context"
	"net/http"
	"sync/atomic"

	"cashtimachann/internal/core"
	applog "cashtimachann/internal/log"
)

// receiptView is rendered after every accepted money movement.
type receiptView struct {
	Kind    string
	Receipt core.PaymentReceipt
	Amount  core.Money
	Target  string
}

// securityView is the security settings panel.
type securityView struct {
	Overview core.SecurityOverview
	PIN      core.PINStatus
	Setup    *core.TwoFactorSetup
	Language core.Language
}

var paymentMessages = map[string]string{
	"send":       "Lajan voye avèk siksè",
	"topup":      "Recharj fèt avèk siksè",
	"bill":       "Fakti peye avèk siksè",
	"card":       "Depo kat la fèt avèk siksè",
	"merchant":   "Peman machann lan fèt avèk siksè",
	"withdrawal": "Retrè a fèt avèk siksè",
	"qr":         "Peman QR la fèt avèk siksè",
}

// paymentDone answers an accepted payment with the receipt and the events
// the dashboard listens to.
func (s *Server) paymentDone(w http.ResponseWriter, r *http.Request, view receiptView) {
	atomic.AddInt64(&s.appMetrics.payments, 1)
	msg := view.Receipt.Message
	if msg == "" {
		msg = paymentMessages[view.Kind]
	}
	b := s.partial(r, "receipt", view).
		TriggerPaymentDone(view.Kind, view.Receipt.Reference()).
		TriggerFormReset().
		TriggerSuccessNotification(msg)
	if view.Kind == "send" {
		b = b.TriggerRecipientsChanged()
	}
	b.Write(w)
}

// paymentFailed logs and renders a rejected payment.
func paymentFailed(w http.ResponseWriter, r *http.Request, kind string, err error) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	if isValidationError(err) {
		logger.InfoContext(ctx, "Payment rejected",
			applog.FieldPaymentKind, kind,
			applog.FieldError, err.Error())
	} else {
		logger.WarnContext(ctx, "Payment failed",
			applog.FieldPaymentKind, kind,
			applog.FieldOperation, applog.OpSubmit,
			applog.FieldError, err.Error())
	}
	errorResponse(err).Write(w)
}

// readPayment parses the form and the amount field common to every form.
func readPayment(w http.ResponseWriter, r *http.Request) (*FormReader, core.Money, bool) {
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return nil, core.Money{}, false
	}
	amount, err := form.Amount("amount")
	if err != nil {
		errorResponse(err).Write(w)
		return nil, core.Money{}, false
	}
	return form, amount, true
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, amount, ok := readPayment(w, r)
	if !ok {
		return
	}
	req := core.TransferRequest{
		ReceiverPhone: form.Get("receiver"),
		Amount:        amount,
		Description:   form.Get("description"),
		PIN:           form.Secret("pin"),
	}
	rcpt, err := s.payments.Transfer(r.Context(), a.Token, a.Snapshot.Data.User, req, form.Get("recipient_name"))
	if err != nil {
		paymentFailed(w, r, "send", err)
		return
	}
	s.paymentDone(w, r, receiptView{Kind: "send", Receipt: rcpt, Amount: amount, Target: req.ReceiverPhone})
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, amount, ok := readPayment(w, r)
	if !ok {
		return
	}
	req := core.TopUpRequest{
		RecipientPhone: form.Get("phone"),
		Carrier:        form.Get("carrier"),
		Amount:         amount,
		Message:        form.Get("message"),
	}
	rcpt, err := s.payments.TopUp(r.Context(), a.Token, req)
	if err != nil {
		paymentFailed(w, r, "topup", err)
		return
	}
	s.paymentDone(w, r, receiptView{Kind: "topup", Receipt: rcpt, Amount: amount, Target: req.RecipientPhone})
}

func (s *Server) handleBillPayment(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, amount, ok := readPayment(w, r)
	if !ok {
		return
	}
	req := core.BillPaymentRequest{
		BillType:        form.Get("bill_type"),
		ServiceProvider: form.Get("service_provider"),
		AccountNumber:   form.Get("account_number"),
		Amount:          amount,
		PIN:             form.Secret("pin"),
	}
	rcpt, err := s.payments.PayBill(r.Context(), a.Token, req)
	if err != nil {
		paymentFailed(w, r, "bill", err)
		return
	}
	s.paymentDone(w, r, receiptView{Kind: "bill", Receipt: rcpt, Amount: amount, Target: req.AccountNumber})
}

func (s *Server) handleCardDeposit(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, amount, ok := readPayment(w, r)
	if !ok {
		return
	}
	req := core.CardDepositRequest{
		CardNumber:     form.Secret("card_number"),
		ExpiryMonth:    form.Get("expiry_month"),
		ExpiryYear:     form.Get("expiry_year"),
		CVV:            form.Secret("cvv"),
		CardholderName: form.Get("cardholder_name"),
		Amount:         amount,
	}
	rcpt, err := s.payments.CardDeposit(r.Context(), a.Token, req)
	if err != nil {
		paymentFailed(w, r, "card", err)
		return
	}
	s.paymentDone(w, r, receiptView{Kind: "card", Receipt: rcpt, Amount: amount, Target: req.CardholderName})
}

func (s *Server) handleMerchantPayment(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, amount, ok := readPayment(w, r)
	if !ok {
		return
	}
	req := core.MerchantPaymentRequest{
		MerchantCode: form.Get("merchant_code"),
		Amount:       amount,
		Description:  form.Get("description"),
		PaymentType:  form.Get("payment_type"),
	}
	rcpt, err := s.payments.MerchantPayment(r.Context(), a.Token, req)
	if err != nil {
		paymentFailed(w, r, "merchant", err)
		return
	}
	s.paymentDone(w, r, receiptView{Kind: "merchant", Receipt: rcpt, Amount: amount, Target: req.MerchantCode})
}

func (s *Server) handleAgentWithdrawal(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, amount, ok := readPayment(w, r)
	if !ok {
		return
	}
	req := core.AgentWithdrawalRequest{
		AgentCode: form.Get("agent_code"),
		Amount:    amount,
		PIN:       form.Secret("pin"),
	}
	rcpt, err := s.payments.AgentWithdrawal(r.Context(), a.Token, req)
	if err != nil {
		paymentFailed(w, r, "withdrawal", err)
		return
	}
	s.paymentDone(w, r, receiptView{Kind: "withdrawal", Receipt: rcpt, Amount: amount, Target: req.AgentCode})
}

// handleGenerateQR renders a payment request QR for the caller's wallet.
func (s *Server) handleGenerateQR(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, amount, ok := readPayment(w, r)
	if !ok {
		return
	}
	qr, err := s.payments.GenerateQR(r.Context(), a.Token, core.QRGenerateRequest{
		Amount:      amount,
		Description: form.Get("description"),
	})
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "qr_code", qr).Write(w)
}

func (s *Server) handleProcessQR(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	rcpt, err := s.payments.ProcessQR(r.Context(), a.Token, core.QRProcessRequest{
		QRData: form.Get("qr_data"),
		PIN:    form.Secret("pin"),
	})
	if err != nil {
		paymentFailed(w, r, "qr", err)
		return
	}
	view := receiptView{Kind: "qr", Receipt: rcpt}
	if rcpt.Transaction != nil {
		view.Amount = rcpt.Transaction.Amount
		view.Target = rcpt.Transaction.ReceiverName
	}
	s.paymentDone(w, r, view)
}

func (s *Server) securityView(ctx context.Context, a *authContext) (securityView, error) {
	overview, err := s.payments.SecurityOverview(ctx, a.Token)
	if err != nil {
		return securityView{}, err
	}
	pin, err := s.payments.PINStatus(ctx, a.Token)
	if err != nil {
		return securityView{}, err
	}
	return securityView{Overview: overview, PIN: pin, Language: a.Session.Language}, nil
}

func (s *Server) handleSecurity(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	view, err := s.securityView(r.Context(), a)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "security", view).Write(w)
}

// handleSetPIN creates or changes the transaction PIN.
func (s *Server) handleSetPIN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	if err := s.payments.SetPIN(ctx, a.Token, form.Secret("pin"), form.Secret("confirm_pin")); err != nil {
		errorResponse(err).Write(w)
		return
	}
	applog.FromContext(ctx).InfoContext(ctx, "Transaction PIN updated", applog.FieldOperation, applog.OpUpdate)
	view, err := s.securityView(ctx, a)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "security", view).
		TriggerFormReset().
		TriggerSuccessNotification("PIN ou anrejistre").
		Write(w)
}

func (s *Server) handleEnable2FA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	setup, err := s.payments.Enable2FA(ctx, a.Token)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	view, err := s.securityView(ctx, a)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	view.Setup = &setup
	msg := setup.Message
	if msg == "" {
		msg = "Nou voye yon kòd verifikasyon ba ou"
	}
	s.partial(r, "security", view).TriggerSuccessNotification(msg).Write(w)
}

func (s *Server) handleVerify2FA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a := authFrom(ctx)
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	if err := s.payments.Verify2FA(ctx, a.Token, form.Get("code")); err != nil {
		errorResponse(err).Write(w)
		return
	}
	view, err := s.securityView(ctx, a)
	if err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.partial(r, "security", view).
		TriggerSuccessNotification("Verifikasyon 2 etap aktive").
		Write(w)
}

// accountUpdated finishes an account change: the cached profile is stale.
func (s *Server) accountUpdated(w http.ResponseWriter, r *http.Request, a *authContext, msg string) {
	s.coreData.Invalidate(a.Token)
	NewHTMXResponse().
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		Trigger("dashboard:refreshed", struct{}{}).
		Write(w)
}

func (s *Server) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	email := core.NormalizeEmail(form.Get("email"))
	if !core.LooksLikeEmail(email) {
		UnprocessableEntityError("Imèl la pa valab").Write(w)
		return
	}
	if err := s.gw.UpdateEmail(r.Context(), a.Token, email); err != nil {
		errorResponse(err).Write(w)
		return
	}
	a.Session.Email = email
	if err := s.sessions.Save(r.Context(), a.Session); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to save session", applog.FieldError, err.Error())
	}
	s.accountUpdated(w, r, a, "Imèl ou chanje")
}

func (s *Server) handleUpdatePhone(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	country := form.Get("country")
	if country == "" {
		country = "HT"
	}
	phone := form.Get("phone")
	if err := core.ValidatePhoneNumber(phone, country); err != nil {
		errorResponse(err).Write(w)
		return
	}
	if err := s.gw.UpdatePhone(r.Context(), a.Token, core.NormalizePhone(phone)); err != nil {
		errorResponse(err).Write(w)
		return
	}
	s.accountUpdated(w, r, a, "Nimewo telefòn ou chanje")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	req := core.ChangePasswordRequest{
		CurrentPassword: form.Secret("current_password"),
		NewPassword:     form.Secret("new_password"),
	}
	if err := req.Validate(); err != nil {
		errorResponse(err).Write(w)
		return
	}
	if req.NewPassword != form.Secret("confirm_password") {
		UnprocessableEntityError("Modpas yo pa menm").Write(w)
		return
	}
	if err := s.gw.ChangePassword(r.Context(), a.Token, req); err != nil {
		errorResponse(err).Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Password changed", applog.FieldOperation, applog.OpUpdate)
	NewHTMXResponse().
		TriggerFormReset().
		TriggerSuccessNotification("Modpas ou chanje").
		Write(w)
}

// handleUpdateLanguage stores the UI language on the backend and in the
// session.
func (s *Server) handleUpdateLanguage(w http.ResponseWriter, r *http.Request) {
	a := authFrom(r.Context())
	form, err := ReadForm(w, r)
	if err != nil {
		BadRequestError("Fòm nan pa valab").Write(w)
		return
	}
	lang := core.ParseLanguage(form.Get("language"))
	if err := s.gw.UpdateLanguage(r.Context(), a.Token, lang); err != nil {
		errorResponse(err).Write(w)
		return
	}
	a.Session.Language = lang
	if err := s.sessions.Save(r.Context(), a.Session); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to save session", applog.FieldError, err.Error())
	}
	NewHTMXResponse().
		TriggerSuccessNotification("Lang lan chanje").
		Trigger("language:changed", map[string]string{"language": string(lang)}).
		Write(w)
}
