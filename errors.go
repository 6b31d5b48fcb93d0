package payrelay

import "errors"

// Sentinel errors for payment operations. Input-validation errors are
// detected synchronously before any external call; declines are recoverable;
// transport errors may be retried with backoff; facilitator rejections are
// terminal for the attempt because resubmitting a consumed nonce is unsafe.
var (
	// ErrNoSigningIdentity indicates no connected signing identity is available.
	ErrNoSigningIdentity = errors.New("payrelay: no signing identity connected")

	// ErrUnsupportedNetwork indicates the network (or its stablecoin) is not configured.
	ErrUnsupportedNetwork = errors.New("payrelay: unsupported network or token")

	// ErrInvalidAmount indicates an amount that does not scale to a positive integer.
	ErrInvalidAmount = errors.New("payrelay: invalid amount")

	// ErrInvalidRecipient indicates a malformed recipient address.
	ErrInvalidRecipient = errors.New("payrelay: invalid recipient address")

	// ErrInvalidAuthorization indicates a malformed signed authorization.
	ErrInvalidAuthorization = errors.New("payrelay: invalid authorization")

	// ErrUserDeclined indicates the payer rejected the signature prompt.
	// Recoverable: the caller may retry with a fresh authorization.
	ErrUserDeclined = errors.New("payrelay: user declined signature")

	// ErrSignerUnavailable indicates the signing capability failed.
	// Fatal for this attempt.
	ErrSignerUnavailable = errors.New("payrelay: signing capability unavailable")

	// ErrCeilingExceeded indicates the required payment exceeds the spend ceiling.
	ErrCeilingExceeded = errors.New("payrelay: payment exceeds spend ceiling")

	// ErrConfirmationDenied indicates the confirmation gate did not approve the payment.
	ErrConfirmationDenied = errors.New("payrelay: payment not confirmed")

	// ErrInvalidChallenge indicates a payment-required challenge with unusable terms.
	ErrInvalidChallenge = errors.New("payrelay: invalid payment challenge")

	// ErrNetworkError indicates a transport failure talking to the facilitator.
	ErrNetworkError = errors.New("payrelay: network error")

	// ErrSettlementFailed indicates the facilitator rejected the settlement.
	ErrSettlementFailed = errors.New("payrelay: settlement failed")

	// ErrFacilitatorUnavailable indicates the facilitator service is unreachable.
	ErrFacilitatorUnavailable = errors.New("payrelay: facilitator unavailable")
)

// ErrorCode classifies payment errors for programmatic handling, so a caller
// can distinguish "you declined" from "this failed" from "fix your input".
type ErrorCode string

const (
	// ErrCodeNoSigningIdentity indicates no wallet is connected.
	ErrCodeNoSigningIdentity ErrorCode = "NO_SIGNING_IDENTITY"

	// ErrCodeUnsupportedNetwork indicates an unconfigured network or token.
	ErrCodeUnsupportedNetwork ErrorCode = "UNSUPPORTED_NETWORK"

	// ErrCodeInvalidInput indicates a recoverable input-validation failure.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeUserDeclined indicates the payer rejected the signature prompt.
	ErrCodeUserDeclined ErrorCode = "USER_DECLINED"

	// ErrCodeCeilingExceeded indicates the payment exceeds the spend ceiling.
	ErrCodeCeilingExceeded ErrorCode = "CEILING_EXCEEDED"

	// ErrCodeConfirmationDenied indicates the confirmation gate denied the payment.
	ErrCodeConfirmationDenied ErrorCode = "CONFIRMATION_DENIED"

	// ErrCodeNetworkError indicates a transport failure.
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"

	// ErrCodeSettlementFailed indicates a facilitator rejection.
	ErrCodeSettlementFailed ErrorCode = "SETTLEMENT_FAILED"

	// ErrCodeSigningFailed indicates the signing capability failed.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"
)

// PaymentError provides structured error information.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
