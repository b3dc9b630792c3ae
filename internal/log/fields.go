package log

// Field names shared by every component, so records from the dashboard and
// the worker can be joined on them.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldTargetUser  = "target_user_id"
	FieldRole        = "role"
	FieldSessionID   = "session_id"
	FieldEndpoint    = "endpoint"
	FieldPaymentKind = "payment_kind"
	FieldAmountCents = "amount_cents"
	FieldReference   = "reference"
	FieldRecipient   = "recipient"
)

const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentAuth       = "auth"
	ComponentSession    = "session"
	ComponentGateway    = "gateway"
	ComponentCoreData   = "core_data"
	ComponentPayments   = "payments"
	ComponentRecipients = "recipients"
	ComponentAdmin      = "admin"
	ComponentAccounts   = "accounts"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentSecurity   = "security"
	ComponentRateLimit  = "rate_limit"
	ComponentTrace      = "trace"
	ComponentBackend    = "backend"
	ComponentTemplate   = "template"
)

// Operation names. Admin actions use their own verbs below.
const (
	OpUpdate  = "update"
	OpLogin   = "login"
	OpLogout  = "logout"
	OpSubmit  = "submit"
	OpExport  = "export"
	OpHydrate = "hydrate"

	OpRegister       = "register"
	OpVerifyEmail    = "verify_email"
	OpForgotPassword = "forgot_password"
	OpConfirmReset   = "confirm_password_reset"

	OpCreateUser     = "create_user"
	OpToggleUser     = "toggle_user"
	OpResetPassword  = "reset_password"
	OpApproveDoc     = "approve_document"
	OpRejectDoc      = "reject_document"
	OpAdjustWallet   = "adjust_wallet"
	OpToggleWallet   = "toggle_wallet"
	OpTransactionSet = "set_transaction_status"
)

const ErrorTypeConfiguration = "configuration_error"

// LogFields builds the key/value list of one record.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds the error text; nil is ignored.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTarget names the account an admin acted on.
func (f LogFields) WithTarget(userID string) LogFields {
	if userID != "" {
		f[FieldTargetUser] = userID
	}
	return f
}

// WithPayment adds money-movement fields. The recipient is masked.
func (f LogFields) WithPayment(kind string, amountCents int64, recipient, reference string) LogFields {
	f[FieldPaymentKind] = kind
	f[FieldAmountCents] = amountCents
	if recipient != "" {
		f[FieldRecipient] = MaskContact(recipient)
	}
	if reference != "" {
		f[FieldReference] = reference
	}
	return f
}

// ToSlice flattens the fields for slog.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
