package authz

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	payrelay "github.com/payrelay/payrelay-go"
)

// LocalSigner is a private-key-backed TypedDataSigner. It signs immediately
// without user interaction, which makes it suitable for server-side wallets,
// the CLI, and tests. Browser deployments use a wallet-backed signer instead.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner creates a LocalSigner from a hex-encoded private key,
// with or without a 0x prefix.
func NewLocalSigner(privateKeyHex string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payrelay.ErrSignerUnavailable, err)
	}
	return NewLocalSignerFromKey(key), nil
}

// NewLocalSignerFromKey creates a LocalSigner from an existing key.
func NewLocalSignerFromKey(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the address derived from the key.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignDigest implements TypedDataSigner.
func (s *LocalSigner) SignDigest(_ context.Context, digest [32]byte) ([]byte, error) {
	return crypto.Sign(digest[:], s.key)
}

// SigningContext returns a SigningContext bound to this key for the given
// chain.
func (s *LocalSigner) SigningContext(chainID int64) *SigningContext {
	return &SigningContext{
		Address: s.address,
		ChainID: chainID,
		Signer:  s,
	}
}
