// Package encoding provides base64+JSON codecs for payment data carried in
// headers and JSON-RPC metadata: signed authorizations and settlement
// proofs.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	payrelay "github.com/payrelay/payrelay-go"
)

// EncodeAuthorization converts a signed authorization's wire form to
// base64-encoded JSON.
func EncodeAuthorization(signed *payrelay.SignedTransferAuthorization) (string, error) {
	data, err := json.Marshal(signed.Wire())
	if err != nil {
		return "", fmt.Errorf("failed to marshal authorization: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeAuthorization decodes and validates a base64-encoded authorization.
func DecodeAuthorization(encoded string) (*payrelay.SignedTransferAuthorization, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var wire payrelay.WireAuthorization
	if err := json.Unmarshal(decoded, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization: %w", err)
	}
	return wire.Parse()
}

// EncodeSettlement converts a settlement result to base64-encoded JSON. This
// is the settlement-proof form attached to retried tool calls.
func EncodeSettlement(result payrelay.SettlementResult) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettlement converts a base64-encoded JSON string back to a
// settlement result.
func DecodeSettlement(encoded string) (payrelay.SettlementResult, error) {
	var result payrelay.SettlementResult

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return result, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}
	return result, nil
}
