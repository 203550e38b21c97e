package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldUserID        = "user_id"
	FieldUsername      = "username"
	FieldTransactionID = "transaction_id"
	FieldAmountCents   = "amount_cents"
	FieldBalanceCents  = "balance_cents"
	FieldCategory      = "category"
	FieldAction        = "action"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentAuth    = "auth"
	ComponentLedger  = "ledger"
	ComponentReports = "reports"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
)
