package payrelay

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a payment is being attempted.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates a payment succeeded.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates a payment failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent represents a payment lifecycle event, used by both the HTTP
// and MCP surfaces for consistent logging and monitoring.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Method is the transport method ("HTTP" or "MCP").
	Method string

	// Tool is the MCP tool being invoked (MCP only).
	Tool string

	// URL is the resource URL being accessed (HTTP only).
	URL string

	// Amount is the payment amount as a decimal token-unit string.
	Amount string

	// Network is the network identifier the payment targets.
	Network string

	// Recipient is the payment recipient address.
	Recipient string

	// Payer is the address that made the payment (available on success).
	Payer string

	// TxHash is the on-chain transaction hash (available on success).
	TxHash string

	// Error contains error details (available on failure).
	Error error

	// Duration is the time taken for the payment operation.
	Duration time.Duration
}

// PaymentCallback handles payment events. Callbacks are invoked synchronously
// during payment processing and should return quickly.
type PaymentCallback func(PaymentEvent)
