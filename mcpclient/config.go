// Package mcpclient provides an MCP client transport that makes tool
// invocation payment-transparent: when the upstream answers a tool call with
// a payment-required challenge, the transport drives the authorization
// engine and settlement submitter, then retries the call with settlement
// proof attached.
package mcpclient

import (
	"math/big"

	payrelay "github.com/payrelay/payrelay-go"
	"github.com/payrelay/payrelay-go/authz"
	"github.com/payrelay/payrelay-go/settle"
)

// PaymentTerms are the payment requirements extracted from a 402 challenge.
type PaymentTerms struct {
	// Amount is the required payment as a decimal token-unit string.
	Amount string `json:"amount"`

	// Recipient is the payee address.
	Recipient string `json:"recipient"`

	// Network is the registry network identifier.
	Network string `json:"network"`

	// Asset optionally names the token contract the server expects.
	Asset string `json:"asset,omitempty"`

	// Description optionally describes what is being paid for.
	Description string `json:"description,omitempty"`
}

// ConfirmFunc is the user-visible confirmation gate invoked before funds
// move. It must return true for the payment to proceed.
type ConfirmFunc func(PaymentTerms) bool

// Config holds configuration for the payment-aware MCP transport.
type Config struct {
	// ServerURL is the MCP server endpoint.
	ServerURL string

	// Signing is the payer's signing identity. Paid tool calls fail fast
	// with payrelay.ErrNoSigningIdentity when it is absent.
	Signing *authz.SigningContext

	// Engine builds and signs transfer authorizations.
	Engine *authz.Engine

	// Submitter delivers signed authorizations for settlement.
	Submitter *settle.Submitter

	// SpendCeiling is the maximum authorized value per payment decision, in
	// the token's atomic units. Exceeding it is a hard stop.
	SpendCeiling *big.Int

	// Confirm gates every payment. A nil Confirm denies all payments.
	Confirm ConfirmFunc

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt payrelay.PaymentCallback

	// OnPaymentSuccess is called when a payment succeeds.
	OnPaymentSuccess payrelay.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure payrelay.PaymentCallback
}

// Option is a functional option for configuring the Transport.
type Option func(*Config)

// WithSigningContext sets the payer's signing identity.
func WithSigningContext(sc *authz.SigningContext) Option {
	return func(c *Config) {
		c.Signing = sc
	}
}

// WithSubmitter sets the settlement submitter.
func WithSubmitter(s *settle.Submitter) Option {
	return func(c *Config) {
		c.Submitter = s
	}
}

// WithSpendCeiling sets the per-payment spend ceiling in atomic units.
func WithSpendCeiling(ceiling *big.Int) Option {
	return func(c *Config) {
		c.SpendCeiling = ceiling
	}
}

// WithConfirm sets the confirmation gate.
func WithConfirm(confirm ConfirmFunc) Option {
	return func(c *Config) {
		c.Confirm = confirm
	}
}

// WithPaymentCallback sets a unified payment callback for all events.
func WithPaymentCallback(callback payrelay.PaymentCallback) Option {
	return func(c *Config) {
		c.OnPaymentAttempt = callback
		c.OnPaymentSuccess = callback
		c.OnPaymentFailure = callback
	}
}

// WithPaymentAttemptCallback sets the payment attempt callback.
func WithPaymentAttemptCallback(callback payrelay.PaymentCallback) Option {
	return func(c *Config) {
		c.OnPaymentAttempt = callback
	}
}

// WithPaymentSuccessCallback sets the payment success callback.
func WithPaymentSuccessCallback(callback payrelay.PaymentCallback) Option {
	return func(c *Config) {
		c.OnPaymentSuccess = callback
	}
}

// WithPaymentFailureCallback sets the payment failure callback.
func WithPaymentFailureCallback(callback payrelay.PaymentCallback) Option {
	return func(c *Config) {
		c.OnPaymentFailure = callback
	}
}

// DefaultConfig returns a Config with default settings.
func DefaultConfig(serverURL string) *Config {
	return &Config{
		ServerURL: serverURL,
		Engine:    authz.NewEngine(),
	}
}
