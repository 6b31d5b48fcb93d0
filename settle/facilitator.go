package settle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	payrelay "github.com/payrelay/payrelay-go"
	"github.com/payrelay/payrelay-go/retry"
)

// AuthorizationProvider returns an Authorization header value per request.
// Useful for dynamic tokens (e.g. JWT refresh); it is called on every
// attempt, including retries, and must be safe for concurrent use.
type AuthorizationProvider func(*http.Request) string

// VerifyResponse is returned by the facilitator /verify endpoint.
type VerifyResponse struct {
	// IsValid indicates whether the authorization would settle.
	IsValid bool `json:"isValid"`

	// InvalidReason is a short error code when the authorization is invalid.
	InvalidReason string `json:"invalidReason,omitempty"`

	// InvalidMessage is a human-readable message when the authorization is invalid.
	InvalidMessage string `json:"invalidMessage,omitempty"`

	// Payer is the authorization's from address.
	Payer string `json:"payer,omitempty"`
}

// SettleResponse is returned by the facilitator /settle endpoint.
type SettleResponse struct {
	// Success indicates the transfer was executed on-chain.
	Success bool `json:"success"`

	// Transaction is the on-chain transaction hash.
	Transaction string `json:"transaction,omitempty"`

	// Network is the network the transfer settled on.
	Network string `json:"network,omitempty"`

	// Payer is the address the funds moved from.
	Payer string `json:"payer,omitempty"`

	// ErrorReason is a short error code when settlement failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// ErrorMessage is a human-readable message when settlement failed.
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// facilitatorRequest is the body of /verify and /settle calls.
type facilitatorRequest struct {
	Network       string                     `json:"network"`
	Authorization payrelay.WireAuthorization `json:"authorization"`
}

// FacilitatorClient talks to the gas-paying facilitator service for one
// network. It is the gateway-side counterpart of Submitter.
type FacilitatorClient struct {
	// BaseURL is the facilitator service URL, without trailing slash.
	BaseURL string

	// Client is the HTTP client to use. If nil, http.DefaultClient is used.
	Client *http.Client

	// Timeouts bounds verify and settle calls.
	Timeouts payrelay.TimeoutConfig

	// MaxRetries is the number of retry attempts for unreachable-facilitator
	// failures. Settlement responses are never retried, only transport
	// failures before a response arrived could be — and settle disables
	// retries entirely because a submission may have partially landed.
	MaxRetries int

	// RetryDelay is the initial backoff delay (default 100ms, x2 per attempt).
	RetryDelay time.Duration

	// Authorization is a static Authorization header value.
	Authorization string

	// AuthorizationProvider overrides Authorization when set.
	AuthorizationProvider AuthorizationProvider
}

// NewFacilitatorClient creates a client for the given facilitator URL.
func NewFacilitatorClient(baseURL string) *FacilitatorClient {
	return &FacilitatorClient{
		BaseURL:  baseURL,
		Timeouts: payrelay.DefaultTimeouts,
	}
}

func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *FacilitatorClient) setAuthorizationHeader(req *http.Request) {
	var value string
	if c.AuthorizationProvider != nil {
		value = c.AuthorizationProvider(req)
	} else if c.Authorization != "" {
		value = c.Authorization
	}
	if value != "" {
		req.Header.Set("Authorization", value)
	}
}

func (c *FacilitatorClient) retryConfig() retry.Config {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	attempts := c.MaxRetries
	if attempts < 0 {
		attempts = 0
	}
	return retry.Config{
		MaxAttempts:  attempts + 1,
		InitialDelay: delay,
		MaxDelay:     delay * 4,
		Multiplier:   2.0,
	}
}

// Verify asks the facilitator whether the authorization would settle,
// without executing it. Unreachable-facilitator failures are retried per the
// client configuration.
func (c *FacilitatorClient) Verify(ctx context.Context, signed *payrelay.SignedTransferAuthorization, networkID string) (*VerifyResponse, error) {
	body, err := json.Marshal(facilitatorRequest{Network: networkID, Authorization: signed.Wire()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	return retry.WithRetry(ctx, c.retryConfig(), isFacilitatorUnavailable, func() (*VerifyResponse, error) {
		reqCtx := ctx
		if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeouts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.Timeouts.RequestTimeout)
			defer cancel()
		}

		httpResp, err := c.post(reqCtx, "/verify", body)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return nil, parseFacilitatorError(httpResp, payrelay.ErrSettlementFailed)
		}

		var verifyResp VerifyResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&verifyResp); err != nil {
			return nil, fmt.Errorf("failed to decode verify response: %w", err)
		}
		if verifyResp.Payer == "" {
			verifyResp.Payer = signed.From.Hex()
		}
		return &verifyResp, nil
	})
}

// Settle executes the transfer on-chain. Never retried: after a transport
// failure the first attempt may have landed, and the nonce is consumed.
func (c *FacilitatorClient) Settle(ctx context.Context, signed *payrelay.SignedTransferAuthorization, networkID string) (*SettleResponse, error) {
	body, err := json.Marshal(facilitatorRequest{Network: networkID, Authorization: signed.Wire()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settle request: %w", err)
	}

	reqCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.Timeouts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.Timeouts.SubmitTimeout)
		defer cancel()
	}

	httpResp, err := c.post(reqCtx, "/settle", body)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseFacilitatorError(httpResp, payrelay.ErrSettlementFailed)
	}

	var settleResp SettleResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&settleResp); err != nil {
		return nil, fmt.Errorf("failed to decode settle response: %w", err)
	}
	return &settleResp, nil
}

func (c *FacilitatorClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthorizationHeader(req)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payrelay.ErrFacilitatorUnavailable, err)
	}
	return resp, nil
}

// Health probes the facilitator's /supported endpoint, the cheapest
// side-effect-free surface it exposes.
func (c *FacilitatorClient) Health(ctx context.Context) HealthStatus {
	return CheckHealth(ctx, c.httpClient(), c.BaseURL+"/supported")
}

// parseFacilitatorError extracts error details from a non-200 response.
func parseFacilitatorError(resp *http.Response, baseErr error) error {
	bodyBytes, _ := io.ReadAll(resp.Body)

	var errBody map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &errBody); err == nil {
		if reason, ok := errBody["invalidReason"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", baseErr, resp.StatusCode, reason)
		}
		if reason, ok := errBody["errorReason"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", baseErr, resp.StatusCode, reason)
		}
	}

	if len(bodyBytes) > 0 && len(bodyBytes) < 500 {
		return fmt.Errorf("%w: status %d, body: %s", baseErr, resp.StatusCode, string(bodyBytes))
	}
	return fmt.Errorf("%w: status %d", baseErr, resp.StatusCode)
}

func isFacilitatorUnavailable(err error) bool {
	return errors.Is(err, payrelay.ErrFacilitatorUnavailable)
}
