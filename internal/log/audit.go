package log

import "context"

// AuditLogger writes the money-movement and admin-action records that
// support staff search for. Every record carries the operation and the
// component so they can be filtered without parsing messages.
type AuditLogger struct {
	logger *Logger
}

func NewAuditLogger(logger *Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogPaymentSubmitted records a money movement the backend accepted.
func (a *AuditLogger) LogPaymentSubmitted(ctx context.Context, kind string, amountCents int64, recipient, reference string) {
	fields := NewFields().
		WithPayment(kind, amountCents, recipient, reference).
		WithOperation(OpSubmit).
		WithComponent(ComponentPayments)

	a.logger.InfoContext(ctx, "Payment submitted", fields.ToSlice()...)
}

// LogAdminAction records a change an admin made to someone else's account.
func (a *AuditLogger) LogAdminAction(ctx context.Context, action, targetUserID string, extra LogFields) {
	fields := extra
	if fields == nil {
		fields = NewFields()
	}
	fields = fields.
		WithTarget(targetUserID).
		WithOperation(action).
		WithComponent(ComponentAdmin)

	a.logger.InfoContext(ctx, "Admin action", fields.ToSlice()...)
}
