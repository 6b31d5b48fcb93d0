// Package settle delivers signed transfer authorizations for on-chain
// execution and interprets the outcome. Submitter talks to the gateway's
// facilitator-fronting submit endpoint; FacilitatorClient talks to the
// facilitator service itself. Neither layer is idempotent: resubmitting a
// consumed nonce is rejected by the token contract, so callers needing
// certainty after a transport failure must query a transaction-status
// source, not re-submit.
package settle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	payrelay "github.com/payrelay/payrelay-go"
)

// SubmitRequest is the wire body of a settlement submission. All integer
// fields inside the authorization are decimal strings.
type SubmitRequest struct {
	// Network is the registry network identifier ("mainnet" or "testnet").
	Network string `json:"network"`

	// Authorization is the signed transfer authorization in wire form.
	Authorization payrelay.WireAuthorization `json:"authorization"`
}

// Submitter delivers signed authorizations to a facilitator-fronting submit
// endpoint and normalizes the result. Expected failure modes never surface
// as errors: they are encoded into the returned SettlementResult so callers
// must handle each variant. Only programmer errors (unconfigured network,
// marshal failure) return a non-nil error.
type Submitter struct {
	// Endpoint is the full submit endpoint URL
	// (e.g. "https://gateway.example.com/api/payment/usdc/submit").
	Endpoint string

	// Client is the HTTP client to use. If nil, http.DefaultClient is used.
	Client *http.Client

	// Timeouts bounds the submission when the caller's context has no
	// deadline of its own.
	Timeouts payrelay.TimeoutConfig
}

// NewSubmitter creates a Submitter with default timeouts.
func NewSubmitter(endpoint string) *Submitter {
	return &Submitter{
		Endpoint: endpoint,
		Timeouts: payrelay.DefaultTimeouts,
	}
}

func (s *Submitter) httpClient() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

// Submit sends the signed authorization for settlement on the given network.
//
// Transport failures return {Success:false, Error:"Network error"} with the
// underlying message in Reason; the caller decides whether to retry with a
// fresh authorization. Non-2xx responses return the facilitator's error body
// when it parses as JSON, or a synthesized "HTTP <status>" marker otherwise.
// A 2xx response passes the facilitator's result through.
func (s *Submitter) Submit(ctx context.Context, signed *payrelay.SignedTransferAuthorization, networkID string) (*payrelay.SettlementResult, error) {
	if signed == nil {
		return nil, fmt.Errorf("%w: nil authorization", payrelay.ErrInvalidAuthorization)
	}
	if _, err := payrelay.GetNetworkConfig(networkID); err != nil {
		return nil, err
	}

	body, err := json.Marshal(SubmitRequest{
		Network:       networkID,
		Authorization: signed.Wire(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submit request: %w", err)
	}

	reqCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.Timeouts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.Timeouts.SubmitTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return &payrelay.SettlementResult{
			Success: false,
			Error:   "Network error",
			Reason:  err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &payrelay.SettlementResult{
			Success: false,
			Error:   "Network error",
			Reason:  err.Error(),
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseRejection(resp.StatusCode, respBody), nil
	}

	var result payrelay.SettlementResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return &payrelay.SettlementResult{
			Success: false,
			Error:   fmt.Sprintf("HTTP %d", resp.StatusCode),
			Reason:  "unparseable settlement response",
		}, nil
	}
	return &result, nil
}

// parseRejection extracts a best-effort error from a non-success response.
func parseRejection(status int, body []byte) *payrelay.SettlementResult {
	var result payrelay.SettlementResult
	if err := json.Unmarshal(body, &result); err == nil && (result.Error != "" || result.Reason != "") {
		result.Success = false
		if result.Error == "" {
			result.Error = fmt.Sprintf("HTTP %d", status)
		}
		return &result
	}
	return &payrelay.SettlementResult{
		Success: false,
		Error:   fmt.Sprintf("HTTP %d", status),
	}
}
