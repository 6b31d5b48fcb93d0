package authz

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	payrelay "github.com/payrelay/payrelay-go"
)

// Well-known development key; never funded.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testSigningContext(t *testing.T, chainID int64) *SigningContext {
	t.Helper()
	signer, err := NewLocalSigner(testPrivateKey)
	if err != nil {
		t.Fatalf("NewLocalSigner() error = %v", err)
	}
	return signer.SigningContext(chainID)
}

func TestEngineBuild(t *testing.T) {
	engine := NewEngine()
	sc := testSigningContext(t, 8453)

	valid := BuildParams{
		Recipient: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Amount:    "0.01",
		NetworkID: payrelay.NetworkMainnet,
	}

	t.Run("valid params", func(t *testing.T) {
		auth, err := engine.Build(valid, sc)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if auth.From != sc.Address {
			t.Errorf("From = %s; want signer address %s", auth.From.Hex(), sc.Address.Hex())
		}
		if auth.Value.Cmp(big.NewInt(10000)) != 0 {
			t.Errorf("Value = %s; want 10000 atomic units", auth.Value)
		}
		if auth.ValidAfter.Sign() != 0 {
			t.Errorf("ValidAfter = %s; want 0", auth.ValidAfter)
		}
		wantExpiry := time.Now().Add(DefaultValidityWindow).Unix()
		if diff := auth.ValidBefore.Int64() - wantExpiry; diff < -2 || diff > 2 {
			t.Errorf("ValidBefore = %d; want about %d", auth.ValidBefore.Int64(), wantExpiry)
		}
		if auth.Nonce == ([32]byte{}) {
			t.Error("Nonce is zero")
		}
	})

	t.Run("custom validity window", func(t *testing.T) {
		params := valid
		params.ValidityWindow = 5 * time.Minute
		auth, err := engine.Build(params, sc)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		wantExpiry := time.Now().Add(5 * time.Minute).Unix()
		if diff := auth.ValidBefore.Int64() - wantExpiry; diff < -2 || diff > 2 {
			t.Errorf("ValidBefore = %d; want about %d", auth.ValidBefore.Int64(), wantExpiry)
		}
	})

	t.Run("fresh nonce per build", func(t *testing.T) {
		a, err := engine.Build(valid, sc)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		b, err := engine.Build(valid, sc)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if a.Nonce == b.Nonce {
			t.Error("two builds produced the same nonce")
		}
	})

	tests := []struct {
		name    string
		params  BuildParams
		sc      *SigningContext
		wantErr error
	}{
		{"nil signing context", valid, nil, payrelay.ErrNoSigningIdentity},
		{"signer without capability", valid, &SigningContext{ChainID: 8453}, payrelay.ErrNoSigningIdentity},
		{"unknown network", BuildParams{Recipient: valid.Recipient, Amount: "0.01", NetworkID: "polygon"}, sc, payrelay.ErrUnsupportedNetwork},
		{"chain mismatch", valid, testSigningContext(t, 1), payrelay.ErrUnsupportedNetwork},
		{"bad recipient", BuildParams{Recipient: "not-an-address", Amount: "0.01", NetworkID: payrelay.NetworkMainnet}, sc, payrelay.ErrInvalidRecipient},
		{"zero amount", BuildParams{Recipient: valid.Recipient, Amount: "0", NetworkID: payrelay.NetworkMainnet}, sc, payrelay.ErrInvalidAmount},
		{"negative amount", BuildParams{Recipient: valid.Recipient, Amount: "-1", NetworkID: payrelay.NetworkMainnet}, sc, payrelay.ErrInvalidAmount},
		{"excess precision", BuildParams{Recipient: valid.Recipient, Amount: "0.0000001", NetworkID: payrelay.NetworkMainnet}, sc, payrelay.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Build(tt.params, tt.sc)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v; want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngineSign(t *testing.T) {
	engine := NewEngine()
	signer, err := NewLocalSigner(testPrivateKey)
	if err != nil {
		t.Fatalf("NewLocalSigner() error = %v", err)
	}
	sc := signer.SigningContext(8453)

	auth, err := engine.Build(BuildParams{
		Recipient: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Amount:    "1.5",
		NetworkID: payrelay.NetworkMainnet,
	}, sc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	signed, err := engine.Sign(context.Background(), auth, payrelay.NetworkMainnet, sc)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	t.Run("signature format", func(t *testing.T) {
		if !strings.HasPrefix(signed.Signature, "0x") {
			t.Errorf("Signature = %q; want 0x prefix", signed.Signature)
		}
		sigBytes, err := hex.DecodeString(strings.TrimPrefix(signed.Signature, "0x"))
		if err != nil {
			t.Fatalf("signature is not hex: %v", err)
		}
		if len(sigBytes) != 65 {
			t.Fatalf("signature length = %d; want 65", len(sigBytes))
		}
		if v := sigBytes[64]; v != 27 && v != 28 {
			t.Errorf("recovery id = %d; want 27 or 28", v)
		}
	})

	t.Run("signature recovers signer address", func(t *testing.T) {
		network, err := payrelay.GetNetworkConfig(payrelay.NetworkMainnet)
		if err != nil {
			t.Fatalf("GetNetworkConfig() error = %v", err)
		}
		digest, err := AuthorizationDigest(network, auth)
		if err != nil {
			t.Fatalf("AuthorizationDigest() error = %v", err)
		}

		sigBytes, _ := hex.DecodeString(strings.TrimPrefix(signed.Signature, "0x"))
		recoverable := make([]byte, 65)
		copy(recoverable, sigBytes)
		recoverable[64] -= 27

		pub, err := crypto.SigToPub(digest[:], recoverable)
		if err != nil {
			t.Fatalf("SigToPub() error = %v", err)
		}
		if got := crypto.PubkeyToAddress(*pub); got != signer.Address() {
			t.Errorf("recovered %s; want %s", got.Hex(), signer.Address().Hex())
		}
	})

	t.Run("authorization preserved", func(t *testing.T) {
		if signed.From != auth.From || signed.To != auth.To {
			t.Error("Sign altered addresses")
		}
		if signed.Value.Cmp(auth.Value) != 0 {
			t.Error("Sign altered value")
		}
		if signed.Nonce != auth.Nonce {
			t.Error("Sign altered nonce")
		}
	})

	t.Run("from mismatch rejected", func(t *testing.T) {
		other := *auth
		other.From = signed.To
		_, err := engine.Sign(context.Background(), &other, payrelay.NetworkMainnet, sc)
		if !errors.Is(err, payrelay.ErrInvalidAuthorization) {
			t.Errorf("Sign() error = %v; want ErrInvalidAuthorization", err)
		}
	})

	t.Run("no signing identity", func(t *testing.T) {
		_, err := engine.Sign(context.Background(), auth, payrelay.NetworkMainnet, nil)
		if !errors.Is(err, payrelay.ErrNoSigningIdentity) {
			t.Errorf("Sign() error = %v; want ErrNoSigningIdentity", err)
		}
	})
}

// declineSigner simulates a wallet whose user rejects the prompt.
type declineSigner struct{ err error }

func (s *declineSigner) SignDigest(context.Context, [32]byte) ([]byte, error) {
	return nil, s.err
}

func TestEngineSignFailureClassification(t *testing.T) {
	engine := NewEngine()
	base := testSigningContext(t, 8453)

	auth, err := engine.Build(BuildParams{
		Recipient: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Amount:    "0.01",
		NetworkID: payrelay.NetworkMainnet,
	}, base)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	tests := []struct {
		name      string
		signerErr error
		want      error
	}{
		{"user declined", payrelay.ErrUserDeclined, payrelay.ErrUserDeclined},
		{"context canceled counts as decline", context.Canceled, payrelay.ErrUserDeclined},
		{"wallet failure", errors.New("wallet disconnected"), payrelay.ErrSignerUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &SigningContext{
				Address: base.Address,
				ChainID: base.ChainID,
				Signer:  &declineSigner{err: tt.signerErr},
			}
			_, err := engine.Sign(context.Background(), auth, payrelay.NetworkMainnet, sc)
			if !errors.Is(err, tt.want) {
				t.Errorf("Sign() error = %v; want %v", err, tt.want)
			}
		})
	}

	t.Run("short signature rejected", func(t *testing.T) {
		sc := &SigningContext{
			Address: base.Address,
			ChainID: base.ChainID,
			Signer:  &fixedSigner{sig: make([]byte, 64)},
		}
		_, err := engine.Sign(context.Background(), auth, payrelay.NetworkMainnet, sc)
		if !errors.Is(err, payrelay.ErrSignerUnavailable) {
			t.Errorf("Sign() error = %v; want ErrSignerUnavailable", err)
		}
	})
}

type fixedSigner struct{ sig []byte }

func (s *fixedSigner) SignDigest(context.Context, [32]byte) ([]byte, error) {
	return s.sig, nil
}

func TestAuthorizationDigestDeterministic(t *testing.T) {
	network, err := payrelay.GetNetworkConfig(payrelay.NetworkMainnet)
	if err != nil {
		t.Fatalf("GetNetworkConfig() error = %v", err)
	}

	var nonce [32]byte
	nonce[31] = 1
	auth := &payrelay.TransferAuthorization{
		From:        testSigningContext(t, 8453).Address,
		To:          testSigningContext(t, 8453).Address,
		Value:       big.NewInt(10000),
		ValidAfter:  big.NewInt(0),
		ValidBefore: big.NewInt(1900000000),
		Nonce:       nonce,
	}

	a, err := AuthorizationDigest(network, auth)
	if err != nil {
		t.Fatalf("AuthorizationDigest() error = %v", err)
	}
	b, err := AuthorizationDigest(network, auth)
	if err != nil {
		t.Fatalf("AuthorizationDigest() error = %v", err)
	}
	if a != b {
		t.Error("digest is not deterministic")
	}

	t.Run("digest binds the nonce", func(t *testing.T) {
		other := *auth
		other.Nonce[31] = 2
		c, err := AuthorizationDigest(network, &other)
		if err != nil {
			t.Fatalf("AuthorizationDigest() error = %v", err)
		}
		if a == c {
			t.Error("different nonces produced the same digest")
		}
	})

	t.Run("digest binds the network domain", func(t *testing.T) {
		testnet, err := payrelay.GetNetworkConfig(payrelay.NetworkTestnet)
		if err != nil {
			t.Fatalf("GetNetworkConfig() error = %v", err)
		}
		c, err := AuthorizationDigest(testnet, auth)
		if err != nil {
			t.Fatalf("AuthorizationDigest() error = %v", err)
		}
		if a == c {
			t.Error("different domains produced the same digest")
		}
	})
}
