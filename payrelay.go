// Package payrelay implements the core of a gasless stablecoin payment
// gateway built on EIP-3009 transferWithAuthorization. A payer signs a
// typed-data transfer authorization; a gas-paying facilitator executes the
// on-chain transfer. The package holds the shared data model: transfer
// authorizations, settlement results, exact decimal-amount arithmetic, and
// the immutable network registry that every other component resolves
// network-specific facts through.
//
// Subpackages:
//   - authz: builds and signs transfer authorizations
//   - settle: submits signed authorizations and probes facilitator health
//   - proxy: relays MCP JSON-RPC/streaming traffic to upstream tool servers
//   - mcpclient: payment-aware MCP client transport
//   - gateway: HTTP server exposing the payment and relay endpoints
package payrelay

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransferAuthorization is an unsigned EIP-3009 payment intent. Value and the
// validity bounds are atomic-unit and unix-second integers; floating point is
// never used anywhere in the payment path.
type TransferAuthorization struct {
	// From is the payer address. It must equal the signing identity.
	From common.Address

	// To is the payee address.
	To common.Address

	// Value is the payment amount in the token's atomic units.
	Value *big.Int

	// ValidAfter is the unix timestamp from which the authorization is usable.
	ValidAfter *big.Int

	// ValidBefore is the unix timestamp at which the authorization expires.
	// The bound is exclusive: an authorization is already expired at exactly
	// ValidBefore.
	ValidBefore *big.Int

	// Nonce is a unique 32-byte replay-protection value, generated per
	// authorization. The token contract is the authority on uniqueness; the
	// client only provides probabilistic uniqueness.
	Nonce [32]byte
}

// Usable reports whether the authorization is usable at time t, i.e.
// validAfter <= t < validBefore.
func (a *TransferAuthorization) Usable(t time.Time) bool {
	now := big.NewInt(t.Unix())
	if a.ValidAfter != nil && now.Cmp(a.ValidAfter) < 0 {
		return false
	}
	if a.ValidBefore == nil || now.Cmp(a.ValidBefore) >= 0 {
		return false
	}
	return true
}

// SignedTransferAuthorization is a TransferAuthorization plus its EIP-712
// typed-data signature. It is immutable after creation and valid for exactly
// one submission attempt: retries require a fresh authorization with a fresh
// nonce, because the first attempt may have partially landed.
type SignedTransferAuthorization struct {
	TransferAuthorization

	// Signature is the 65-byte hex-encoded ECDSA signature (0x-prefixed,
	// recovery id offset by 27).
	Signature string
}

// NewNonce generates an authorization nonce: an 8-byte big-endian UnixMilli
// timestamp followed by 24 random bytes. The timestamp prefix makes nonces
// monotonically-ish increasing; collision probability is dominated by the
// random suffix.
func NewNonce() ([32]byte, error) {
	var nonce [32]byte
	binary.BigEndian.PutUint64(nonce[:8], uint64(time.Now().UnixMilli()))
	if _, err := rand.Read(nonce[8:]); err != nil {
		return nonce, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// SettlementResult is the normalized outcome of a settlement submission.
// Transport failures carry Error "Network error"; HTTP rejections carry the
// facilitator's error body or a synthesized "HTTP <status>" marker.
type SettlementResult struct {
	// Success indicates the transfer was executed on-chain.
	Success bool `json:"success"`

	// TxHash is the on-chain transaction hash (success only).
	TxHash string `json:"txHash,omitempty"`

	// Message is an optional human-readable status message.
	Message string `json:"message,omitempty"`

	// Network is the network identifier the transfer settled on.
	Network string `json:"network,omitempty"`

	// ExplorerURL links to the transaction on the network's block explorer.
	ExplorerURL string `json:"explorerUrl,omitempty"`

	// Error is a short failure marker ("Network error", "HTTP 500", ...).
	Error string `json:"error,omitempty"`

	// Reason carries failure detail when available.
	Reason string `json:"reason,omitempty"`
}

// WireAuthorization is the JSON wire form of a signed authorization. Every
// integer field is a decimal string; raw binary integers never cross the wire.
type WireAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
}

// Wire converts a signed authorization to its wire form.
func (s *SignedTransferAuthorization) Wire() WireAuthorization {
	return WireAuthorization{
		From:        s.From.Hex(),
		To:          s.To.Hex(),
		Value:       s.Value.String(),
		ValidAfter:  s.ValidAfter.String(),
		ValidBefore: s.ValidBefore.String(),
		Nonce:       "0x" + hex.EncodeToString(s.Nonce[:]),
		Signature:   s.Signature,
	}
}

// Parse validates a wire authorization and converts it back to its typed form.
func (w WireAuthorization) Parse() (*SignedTransferAuthorization, error) {
	if !common.IsHexAddress(w.From) {
		return nil, fmt.Errorf("%w: from address %q", ErrInvalidRecipient, w.From)
	}
	if !common.IsHexAddress(w.To) {
		return nil, fmt.Errorf("%w: to address %q", ErrInvalidRecipient, w.To)
	}

	value, ok := new(big.Int).SetString(w.Value, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: value %q", ErrInvalidAmount, w.Value)
	}
	validAfter, ok := new(big.Int).SetString(w.ValidAfter, 10)
	if !ok || validAfter.Sign() < 0 {
		return nil, fmt.Errorf("%w: validAfter %q", ErrInvalidAmount, w.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(w.ValidBefore, 10)
	if !ok || validBefore.Sign() < 0 {
		return nil, fmt.Errorf("%w: validBefore %q", ErrInvalidAmount, w.ValidBefore)
	}

	nonceHex := strings.TrimPrefix(w.Nonce, "0x")
	nonceBytes, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonceBytes) != 32 {
		return nil, fmt.Errorf("%w: nonce must be 32 hex bytes", ErrInvalidAuthorization)
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	sigHex := strings.TrimPrefix(w.Signature, "0x")
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil || len(sigBytes) != 65 {
		return nil, fmt.Errorf("%w: signature must be 65 hex bytes", ErrInvalidAuthorization)
	}

	return &SignedTransferAuthorization{
		TransferAuthorization: TransferAuthorization{
			From:        common.HexToAddress(w.From),
			To:          common.HexToAddress(w.To),
			Value:       value,
			ValidAfter:  validAfter,
			ValidBefore: validBefore,
			Nonce:       nonce,
		},
		Signature: w.Signature,
	}, nil
}

// AmountToBigInt converts a decimal amount string to atomic units using exact
// rational arithmetic. "1.5" with 6 decimals becomes 1500000. Amounts with
// more fractional digits than the token supports are rejected rather than
// rounded. Returns ErrInvalidAmount for negative amounts or decimals.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrInvalidAmount
	}

	value := new(big.Rat)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}
	if value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, scale)

	if value.Denom().Cmp(big.NewInt(1)) != 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// ParseAmount is AmountToBigInt restricted to positive amounts. Payment paths
// use this form: a zero-value transfer authorization is never meaningful.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	v, err := AmountToBigInt(amount, decimals)
	if err != nil {
		return nil, err
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	return v, nil
}

// BigIntToAmount converts atomic units back to a decimal string for display.
// 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	rat := new(big.Rat).SetInt(value)
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	rat.Quo(rat, scale)

	return rat.FloatString(decimals)
}
