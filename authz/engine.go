// Package authz builds and signs EIP-3009 transfer authorizations. It is a
// leaf component: Build and Sign perform no network calls, and the signing
// identity is an explicit SigningContext value threaded through every
// operation rather than ambient wallet state, so the engine is testable with
// fake signers.
package authz

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	payrelay "github.com/payrelay/payrelay-go"
)

// DefaultValidityWindow is the authorization lifetime used when BuildParams
// does not specify one.
const DefaultValidityWindow = time.Hour

// TypedDataSigner signs an EIP-712 digest on behalf of the payer. A wallet
// implementation suspends until the user responds; declining must resolve
// the call with payrelay.ErrUserDeclined, not hang it.
type TypedDataSigner interface {
	// SignDigest returns the 65-byte r||s||v signature over the digest.
	// Implementations should honor ctx cancellation while waiting on user
	// interaction.
	SignDigest(ctx context.Context, digest [32]byte) ([]byte, error)
}

// SigningContext is the payer's connected signing identity.
type SigningContext struct {
	// Address is the payer address; it becomes the authorization's From.
	Address common.Address

	// ChainID is the chain the identity is connected to.
	ChainID int64

	// Signer is the signing capability.
	Signer TypedDataSigner
}

// Connected reports whether the context holds a usable signing capability.
func (sc *SigningContext) Connected() bool {
	return sc != nil && sc.Signer != nil && sc.Address != (common.Address{})
}

// BuildParams are the inputs to Build.
type BuildParams struct {
	// Recipient is the payee address.
	Recipient string

	// Amount is the payment amount as a decimal token-unit string ("0.01").
	Amount string

	// ValidityWindow bounds the authorization lifetime. Zero means
	// DefaultValidityWindow.
	ValidityWindow time.Duration

	// NetworkID selects the target network from the registry.
	NetworkID string
}

// Engine produces signed transfer authorizations. The zero value is ready to
// use.
type Engine struct{}

// NewEngine creates an Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Build validates params and constructs an unsigned transfer authorization.
// All failures are reported synchronously, before any signing prompt is
// issued: no signing identity, unsupported network/token, malformed
// recipient, or an amount that does not scale to a positive integer.
func (e *Engine) Build(params BuildParams, sc *SigningContext) (*payrelay.TransferAuthorization, error) {
	if !sc.Connected() {
		return nil, payrelay.ErrNoSigningIdentity
	}

	network, err := payrelay.GetNetworkConfig(params.NetworkID)
	if err != nil {
		return nil, err
	}
	if network.Stablecoin.Address == "" {
		return nil, fmt.Errorf("%w: no stablecoin configured for %s", payrelay.ErrUnsupportedNetwork, params.NetworkID)
	}
	if sc.ChainID != network.ChainID {
		return nil, fmt.Errorf("%w: signer connected to chain %d, network %s is chain %d",
			payrelay.ErrUnsupportedNetwork, sc.ChainID, params.NetworkID, network.ChainID)
	}

	if !common.IsHexAddress(params.Recipient) {
		return nil, fmt.Errorf("%w: %q", payrelay.ErrInvalidRecipient, params.Recipient)
	}

	value, err := payrelay.ParseAmount(params.Amount, network.Stablecoin.Decimals)
	if err != nil {
		return nil, err
	}

	window := params.ValidityWindow
	if window <= 0 {
		window = DefaultValidityWindow
	}

	nonce, err := payrelay.NewNonce()
	if err != nil {
		return nil, err
	}

	return &payrelay.TransferAuthorization{
		From:        sc.Address,
		To:          common.HexToAddress(params.Recipient),
		Value:       value,
		ValidAfter:  big.NewInt(0),
		ValidBefore: big.NewInt(time.Now().Add(window).Unix()),
		Nonce:       nonce,
	}, nil
}

// Sign resolves the EIP-712 domain for the network's stablecoin and requests
// a typed-data signature from the signing context. The call suspends while
// the signer awaits user interaction; a decline resolves to
// payrelay.ErrUserDeclined and any other signer failure to
// payrelay.ErrSignerUnavailable. Sign performs no network calls.
func (e *Engine) Sign(ctx context.Context, auth *payrelay.TransferAuthorization, networkID string, sc *SigningContext) (*payrelay.SignedTransferAuthorization, error) {
	if !sc.Connected() {
		return nil, payrelay.ErrNoSigningIdentity
	}
	if auth.From != sc.Address {
		return nil, fmt.Errorf("%w: authorization from %s does not match signer %s",
			payrelay.ErrInvalidAuthorization, auth.From.Hex(), sc.Address.Hex())
	}

	network, err := payrelay.GetNetworkConfig(networkID)
	if err != nil {
		return nil, err
	}

	digest, err := AuthorizationDigest(network, auth)
	if err != nil {
		return nil, err
	}

	signature, err := sc.Signer.SignDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, payrelay.ErrUserDeclined) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", payrelay.ErrUserDeclined, err)
		}
		return nil, fmt.Errorf("%w: %v", payrelay.ErrSignerUnavailable, err)
	}
	if len(signature) != 65 {
		return nil, fmt.Errorf("%w: signer returned %d bytes", payrelay.ErrSignerUnavailable, len(signature))
	}

	// Canonicalize the recovery id to the 27/28 convention expected by
	// EIP-3009 contracts.
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] < 27 {
		sig[64] += 27
	}

	return &payrelay.SignedTransferAuthorization{
		TransferAuthorization: *auth,
		Signature:             "0x" + common.Bytes2Hex(sig),
	}, nil
}

// AuthorizationDigest computes the EIP-712 digest a wallet signs for the
// authorization. The type schema is fixed by the token contract:
//
//	TransferWithAuthorization(address from, address to, uint256 value,
//	  uint256 validAfter, uint256 validBefore, bytes32 nonce)
//
// and the domain parameters come from the network registry, which mirrors
// the constants declared by the deployed contract.
func AuthorizationDigest(network payrelay.NetworkConfig, auth *payrelay.TransferAuthorization) ([32]byte, error) {
	var digest [32]byte

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              network.Stablecoin.EIP712Name,
			Version:           network.Stablecoin.EIP712Version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(network.ChainID)),
			VerifyingContract: common.HexToAddress(network.Stablecoin.Address).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       (*math.HexOrDecimal256)(auth.Value),
			"validAfter":  (*math.HexOrDecimal256)(auth.ValidAfter),
			"validBefore": (*math.HexOrDecimal256)(auth.ValidBefore),
			"nonce":       common.BytesToHash(auth.Nonce[:]).Hex(),
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return digest, fmt.Errorf("failed to hash domain: %w", err)
	}

	messageHash, err := typedData.HashStruct("TransferWithAuthorization", typedData.Message)
	if err != nil {
		return digest, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	copy(digest[:], crypto.Keccak256(rawData))
	return digest, nil
}
