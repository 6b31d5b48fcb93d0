package encoding

import (
	"encoding/base64"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	payrelay "github.com/payrelay/payrelay-go"
)

func TestAuthorizationCodec(t *testing.T) {
	nonce, err := payrelay.NewNonce()
	if err != nil {
		t.Fatalf("NewNonce() error = %v", err)
	}
	signed := &payrelay.SignedTransferAuthorization{
		TransferAuthorization: payrelay.TransferAuthorization{
			From:        common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
			To:          common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
			Value:       big.NewInt(10000),
			ValidAfter:  big.NewInt(0),
			ValidBefore: big.NewInt(1900000000),
			Nonce:       nonce,
		},
		Signature: "0x" + strings.Repeat("11", 65),
	}

	encoded, err := EncodeAuthorization(signed)
	if err != nil {
		t.Fatalf("EncodeAuthorization() error = %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		t.Fatalf("encoded form is not base64: %v", err)
	}

	decoded, err := DecodeAuthorization(encoded)
	if err != nil {
		t.Fatalf("DecodeAuthorization() error = %v", err)
	}
	if decoded.From != signed.From || decoded.To != signed.To {
		t.Error("round trip lost addresses")
	}
	if decoded.Value.Cmp(signed.Value) != 0 {
		t.Errorf("Value = %s; want %s", decoded.Value, signed.Value)
	}
	if decoded.Nonce != signed.Nonce {
		t.Error("round trip lost nonce")
	}
	if decoded.Signature != signed.Signature {
		t.Error("round trip lost signature")
	}

	t.Run("rejects non-base64", func(t *testing.T) {
		if _, err := DecodeAuthorization("not base64!!!"); err == nil {
			t.Error("DecodeAuthorization accepted garbage")
		}
	})

	t.Run("rejects invalid authorization", func(t *testing.T) {
		tampered := base64.StdEncoding.EncodeToString([]byte(`{"from":"bogus"}`))
		if _, err := DecodeAuthorization(tampered); err == nil {
			t.Error("DecodeAuthorization accepted an invalid authorization")
		}
	})
}

func TestSettlementCodec(t *testing.T) {
	result := payrelay.SettlementResult{
		Success:     true,
		TxHash:      "0xabc123",
		Network:     payrelay.NetworkMainnet,
		ExplorerURL: "https://basescan.org/tx/0xabc123",
	}

	encoded, err := EncodeSettlement(result)
	if err != nil {
		t.Fatalf("EncodeSettlement() error = %v", err)
	}

	decoded, err := DecodeSettlement(encoded)
	if err != nil {
		t.Fatalf("DecodeSettlement() error = %v", err)
	}
	if decoded != result {
		t.Errorf("round trip = %+v; want %+v", decoded, result)
	}

	t.Run("rejects non-base64", func(t *testing.T) {
		if _, err := DecodeSettlement("%%%"); err == nil {
			t.Error("DecodeSettlement accepted garbage")
		}
	})

	t.Run("rejects non-JSON payload", func(t *testing.T) {
		bogus := base64.StdEncoding.EncodeToString([]byte("not json"))
		if _, err := DecodeSettlement(bogus); err == nil {
			t.Error("DecodeSettlement accepted a non-JSON payload")
		}
	})
}
