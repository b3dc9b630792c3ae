package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"cashtimachann/internal/core"
)

// receipt decodes both answer shapes of the money endpoints: an envelope
// {success, message, reference_number, transaction} or the bare transaction.
type receipt core.PaymentReceipt

func (r *receipt) UnmarshalJSON(b []byte) error {
	var env core.PaymentReceipt
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	if env.Reference() == "" && env.Transaction == nil {
		var tx core.Transaction
		if err := json.Unmarshal(b, &tx); err == nil && (tx.ID != "" || tx.ReferenceNumber != "") {
			env.Transaction = &tx
			if env.Fee.IsZero() {
				env.Fee = tx.Fee
			}
		}
	}
	// A 2xx answer is a success even when the backend omits the flag.
	env.Success = true
	*r = receipt(env)
	return nil
}

func (c *Client) submit(ctx context.Context, path, token string, in any) (core.PaymentReceipt, error) {
	var out receipt
	if err := c.do(ctx, http.MethodPost, path, token, nil, in, &out); err != nil {
		return core.PaymentReceipt{}, err
	}
	return core.PaymentReceipt(out), nil
}

func (c *Client) SendMoney(ctx context.Context, token string, req core.TransferRequest) (core.PaymentReceipt, error) {
	return c.submit(ctx, "/api/transactions/send/", token, req)
}

func (c *Client) TopUp(ctx context.Context, token string, req core.TopUpRequest) (core.PaymentReceipt, error) {
	return c.submit(ctx, "/api/transactions/topup/", token, req.WithDefaults())
}

func (c *Client) PayBill(ctx context.Context, token string, req core.BillPaymentRequest) (core.PaymentReceipt, error) {
	return c.submit(ctx, "/api/transactions/bills/", token, req.WithDefaults())
}

func (c *Client) CardDeposit(ctx context.Context, token string, req core.CardDepositRequest) (core.PaymentReceipt, error) {
	return c.submit(ctx, "/api/transactions/card-deposit/", token, req.Normalized())
}

func (c *Client) MerchantPayment(ctx context.Context, token string, req core.MerchantPaymentRequest) (core.PaymentReceipt, error) {
	return c.submit(ctx, "/api/transactions/merchant-payment/", token, req.WithDefaults())
}

func (c *Client) AgentWithdrawal(ctx context.Context, token string, req core.AgentWithdrawalRequest) (core.PaymentReceipt, error) {
	return c.submit(ctx, "/api/transactions/agent-withdrawal/", token, req)
}

func (c *Client) GenerateQR(ctx context.Context, token string, req core.QRGenerateRequest) (core.QRCode, error) {
	var out core.QRCode
	err := c.do(ctx, http.MethodPost, "/api/auth/qr/generate/", token, nil, req, &out)
	return out, err
}

func (c *Client) ProcessQR(ctx context.Context, token string, req core.QRProcessRequest) (core.PaymentReceipt, error) {
	return c.submit(ctx, "/api/auth/qr/process/", token, req)
}
