package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	mcpproto "github.com/mark3labs/mcp-go/mcp"

	payrelay "github.com/payrelay/payrelay-go"
	"github.com/payrelay/payrelay-go/authz"
	"github.com/payrelay/payrelay-go/encoding"
)

// SettlementMetaKey is the params._meta key carrying the base64 settlement
// proof on the retried tool call.
const SettlementMetaKey = "payment/settlement"

// Transport wraps an MCP transport and adds gasless payment handling.
type Transport struct {
	base   transport.Interface
	config *Config
}

// NewTransport creates a payment-aware MCP transport over streamable HTTP.
func NewTransport(serverURL string, opts ...Option) (*Transport, error) {
	config := DefaultConfig(serverURL)
	for _, opt := range opts {
		opt(config)
	}

	base, err := transport.NewStreamableHTTP(serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create base transport: %w", err)
	}

	return newTransport(base, config), nil
}

// newTransport wires a Transport over an existing base transport.
func newTransport(base transport.Interface, config *Config) *Transport {
	if config.Engine == nil {
		config.Engine = DefaultConfig(config.ServerURL).Engine
	}
	return &Transport{base: base, config: config}
}

// Start starts the MCP connection.
func (t *Transport) Start(ctx context.Context) error {
	return t.base.Start(ctx)
}

// SendRequest implements transport.Interface. A JSON-RPC error with code 402
// triggers the payment flow; anything else passes through untouched.
func (t *Transport) SendRequest(ctx context.Context, req transport.JSONRPCRequest) (*transport.JSONRPCResponse, error) {
	resp, err := t.base.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Error == nil || resp.Error.Code != 402 {
		return resp, nil
	}

	terms, err := extractPaymentTerms(resp.Error.Data)
	if err != nil {
		return resp, err
	}

	result, startTime, err := t.pay(ctx, req.Method, terms)
	if err != nil {
		return resp, err
	}

	retryReq, err := attachSettlementProof(req, result)
	if err != nil {
		return resp, fmt.Errorf("failed to attach settlement proof: %w", err)
	}

	return t.retryWithProof(ctx, retryReq, terms, result, startTime)
}

// pay runs the full payment decision for one challenge. Ordering within the
// attempt is strict: ceiling check, confirmation gate, build, sign, submit —
// the engine is never invoked for a denied or over-ceiling payment.
func (t *Transport) pay(ctx context.Context, tool string, terms PaymentTerms) (*payrelay.SettlementResult, time.Time, error) {
	startTime := time.Now()

	fail := func(err error) (*payrelay.SettlementResult, time.Time, error) {
		if t.config.OnPaymentFailure != nil {
			t.config.OnPaymentFailure(payrelay.PaymentEvent{
				Type:      payrelay.PaymentEventFailure,
				Timestamp: time.Now(),
				Method:    "MCP",
				Tool:      tool,
				Amount:    terms.Amount,
				Network:   terms.Network,
				Recipient: terms.Recipient,
				Error:     err,
				Duration:  time.Since(startTime),
			})
		}
		return nil, startTime, err
	}

	// A paid tool without a wallet is a distinguishable failure so callers
	// can prompt for connection instead of surfacing a generic error.
	if !t.config.Signing.Connected() {
		return fail(payrelay.NewPaymentError(payrelay.ErrCodeNoSigningIdentity,
			fmt.Sprintf("tool %s requires payment", tool), payrelay.ErrNoSigningIdentity))
	}

	network, err := payrelay.GetNetworkConfig(terms.Network)
	if err != nil {
		return fail(err)
	}

	required, err := payrelay.ParseAmount(terms.Amount, network.Stablecoin.Decimals)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", payrelay.ErrInvalidChallenge, err))
	}

	if t.config.SpendCeiling != nil && required.Cmp(t.config.SpendCeiling) > 0 {
		return fail(payrelay.NewPaymentError(payrelay.ErrCodeCeilingExceeded,
			fmt.Sprintf("required %s exceeds spend ceiling %s %s",
				terms.Amount,
				payrelay.BigIntToAmount(t.config.SpendCeiling, network.Stablecoin.Decimals),
				network.Stablecoin.Symbol),
			payrelay.ErrCeilingExceeded))
	}

	if t.config.Confirm == nil || !t.config.Confirm(terms) {
		return fail(payrelay.NewPaymentError(payrelay.ErrCodeConfirmationDenied,
			fmt.Sprintf("payment for tool %s was not confirmed", tool), payrelay.ErrConfirmationDenied))
	}

	if t.config.OnPaymentAttempt != nil {
		t.config.OnPaymentAttempt(payrelay.PaymentEvent{
			Type:      payrelay.PaymentEventAttempt,
			Timestamp: startTime,
			Method:    "MCP",
			Tool:      tool,
			Amount:    terms.Amount,
			Network:   terms.Network,
			Recipient: terms.Recipient,
		})
	}

	auth, err := t.config.Engine.Build(authz.BuildParams{
		Recipient: terms.Recipient,
		Amount:    terms.Amount,
		NetworkID: terms.Network,
	}, t.config.Signing)
	if err != nil {
		return fail(err)
	}

	signed, err := t.config.Engine.Sign(ctx, auth, terms.Network, t.config.Signing)
	if err != nil {
		return fail(err)
	}

	if t.config.Submitter == nil {
		return fail(fmt.Errorf("%w: no submitter configured", payrelay.ErrSettlementFailed))
	}

	result, err := t.config.Submitter.Submit(ctx, signed, terms.Network)
	if err != nil {
		return fail(err)
	}
	if !result.Success {
		return fail(payrelay.NewPaymentError(payrelay.ErrCodeSettlementFailed,
			fmt.Sprintf("settlement failed: %s", result.Error), payrelay.ErrSettlementFailed).
			WithDetails("reason", result.Reason))
	}

	return result, startTime, nil
}

// retryWithProof reissues the original call with the settlement proof
// attached and emits the terminal payment event.
func (t *Transport) retryWithProof(ctx context.Context, req transport.JSONRPCRequest, terms PaymentTerms, result *payrelay.SettlementResult, startTime time.Time) (*transport.JSONRPCResponse, error) {
	resp, err := t.base.SendRequest(ctx, req)
	duration := time.Since(startTime)

	if err != nil {
		if t.config.OnPaymentFailure != nil {
			t.config.OnPaymentFailure(payrelay.PaymentEvent{
				Type:      payrelay.PaymentEventFailure,
				Timestamp: time.Now(),
				Method:    "MCP",
				Tool:      req.Method,
				Network:   terms.Network,
				Error:     err,
				Duration:  duration,
			})
		}
		return resp, err
	}

	if resp.Error != nil {
		if resp.Error.Code == 402 && t.config.OnPaymentFailure != nil {
			t.config.OnPaymentFailure(payrelay.PaymentEvent{
				Type:      payrelay.PaymentEventFailure,
				Timestamp: time.Now(),
				Method:    "MCP",
				Tool:      req.Method,
				Network:   terms.Network,
				Error:     fmt.Errorf("payment rejected: %s", resp.Error.Message),
				Duration:  duration,
			})
		}
		return resp, nil
	}

	if t.config.OnPaymentSuccess != nil {
		t.config.OnPaymentSuccess(payrelay.PaymentEvent{
			Type:      payrelay.PaymentEventSuccess,
			Timestamp: time.Now(),
			Method:    "MCP",
			Tool:      req.Method,
			Amount:    terms.Amount,
			Network:   terms.Network,
			Recipient: terms.Recipient,
			TxHash:    result.TxHash,
			Duration:  duration,
		})
	}

	return resp, nil
}

// SendNotification sends a notification to the server.
func (t *Transport) SendNotification(ctx context.Context, notif mcpproto.JSONRPCNotification) error {
	return t.base.SendNotification(ctx, notif)
}

// SetNotificationHandler sets the notification handler.
func (t *Transport) SetNotificationHandler(handler func(mcpproto.JSONRPCNotification)) {
	t.base.SetNotificationHandler(handler)
}

// Close closes the transport.
func (t *Transport) Close() error {
	return t.base.Close()
}

// GetSessionId returns the session ID.
func (t *Transport) GetSessionId() string {
	return t.base.GetSessionId()
}

// extractPaymentTerms decodes the challenge terms from 402 error data.
func extractPaymentTerms(data interface{}) (PaymentTerms, error) {
	var terms PaymentTerms
	if data == nil {
		return terms, fmt.Errorf("%w: no terms in 402 error", payrelay.ErrInvalidChallenge)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return terms, fmt.Errorf("%w: %v", payrelay.ErrInvalidChallenge, err)
	}
	if err := json.Unmarshal(raw, &terms); err != nil {
		return terms, fmt.Errorf("%w: %v", payrelay.ErrInvalidChallenge, err)
	}

	if terms.Amount == "" || terms.Recipient == "" || terms.Network == "" {
		return terms, fmt.Errorf("%w: amount, recipient and network are required", payrelay.ErrInvalidChallenge)
	}
	return terms, nil
}

// attachSettlementProof injects the base64 settlement proof into
// params._meta without disturbing the rest of the request.
func attachSettlementProof(req transport.JSONRPCRequest, result *payrelay.SettlementResult) (transport.JSONRPCRequest, error) {
	proof, err := encoding.EncodeSettlement(*result)
	if err != nil {
		return req, err
	}

	params, ok := req.Params.(map[string]interface{})
	if !ok {
		params = make(map[string]interface{})
		if req.Params != nil {
			data, err := json.Marshal(req.Params)
			if err != nil {
				return req, fmt.Errorf("failed to marshal params: %w", err)
			}
			if err := json.Unmarshal(data, &params); err != nil {
				return req, fmt.Errorf("failed to unmarshal params: %w", err)
			}
		}
	}

	meta, ok := params["_meta"].(map[string]interface{})
	if !ok {
		meta = make(map[string]interface{})
	}
	meta[SettlementMetaKey] = proof
	params["_meta"] = meta

	retryReq := req
	retryReq.Params = params
	return retryReq, nil
}
