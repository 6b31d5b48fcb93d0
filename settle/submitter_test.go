package settle

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	payrelay "github.com/payrelay/payrelay-go"
)

func testSignedAuthorization(t *testing.T) *payrelay.SignedTransferAuthorization {
	t.Helper()
	nonce, err := payrelay.NewNonce()
	if err != nil {
		t.Fatalf("NewNonce() error = %v", err)
	}
	return &payrelay.SignedTransferAuthorization{
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
}

func TestSubmitterSubmit(t *testing.T) {
	signed := testSignedAuthorization(t)

	t.Run("success passes result through", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s; want POST", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q; want application/json", ct)
			}

			var req SubmitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("request body does not decode: %v", err)
			}
			if req.Network != payrelay.NetworkMainnet {
				t.Errorf("network = %q; want mainnet", req.Network)
			}
			if req.Authorization.Value != "10000" {
				t.Errorf("authorization value = %q; want decimal string", req.Authorization.Value)
			}

			json.NewEncoder(w).Encode(payrelay.SettlementResult{
				Success:     true,
				TxHash:      "0xabc123",
				Network:     payrelay.NetworkMainnet,
				ExplorerURL: "https://basescan.org/tx/0xabc123",
			})
		}))
		defer server.Close()

		result, err := NewSubmitter(server.URL).Submit(context.Background(), signed, payrelay.NetworkMainnet)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if !result.Success {
			t.Fatalf("Success = false; Error = %q", result.Error)
		}
		if result.TxHash != "0xabc123" {
			t.Errorf("TxHash = %q; want 0xabc123", result.TxHash)
		}
	})

	t.Run("transport failure is a tagged result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close() // connection refused from here on

		result, err := NewSubmitter(server.URL).Submit(context.Background(), signed, payrelay.NetworkMainnet)
		if err != nil {
			t.Fatalf("Submit() error = %v; transport failures must not surface as errors", err)
		}
		if result.Success {
			t.Fatal("Success = true on transport failure")
		}
		if result.Error != "Network error" {
			t.Errorf("Error = %q; want \"Network error\"", result.Error)
		}
		if result.Reason == "" {
			t.Error("Reason is empty; want underlying transport message")
		}
	})

	t.Run("structured rejection body passes through", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(payrelay.SettlementResult{
				Success: false,
				Error:   "Settlement rejected",
				Reason:  "authorization is not yet valid",
			})
		}))
		defer server.Close()

		result, err := NewSubmitter(server.URL).Submit(context.Background(), signed, payrelay.NetworkMainnet)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if result.Success {
			t.Fatal("Success = true on rejection")
		}
		if result.Error != "Settlement rejected" {
			t.Errorf("Error = %q; want facilitator body passed through", result.Error)
		}
		if result.Reason != "authorization is not yet valid" {
			t.Errorf("Reason = %q", result.Reason)
		}
	})

	t.Run("non-JSON rejection synthesizes HTTP marker", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("<html>Internal Server Error</html>"))
		}))
		defer server.Close()

		result, err := NewSubmitter(server.URL).Submit(context.Background(), signed, payrelay.NetworkMainnet)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if result.Success {
			t.Fatal("Success = true on 500")
		}
		if result.Error != "HTTP 500" {
			t.Errorf("Error = %q; want \"HTTP 500\"", result.Error)
		}
	})

	t.Run("unparseable success body is a failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		result, err := NewSubmitter(server.URL).Submit(context.Background(), signed, payrelay.NetworkMainnet)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if result.Success {
			t.Fatal("Success = true for unparseable body")
		}
	})

	t.Run("replayed nonce settles only once", func(t *testing.T) {
		settled := make(map[string]bool)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req SubmitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("request body does not decode: %v", err)
				return
			}
			if settled[req.Authorization.Nonce] {
				w.WriteHeader(http.StatusPaymentRequired)
				json.NewEncoder(w).Encode(payrelay.SettlementResult{
					Success: false,
					Error:   "Settlement rejected",
					Reason:  "authorization is used or canceled",
				})
				return
			}
			settled[req.Authorization.Nonce] = true
			json.NewEncoder(w).Encode(payrelay.SettlementResult{Success: true, TxHash: "0x1"})
		}))
		defer server.Close()

		submitter := NewSubmitter(server.URL)

		first, err := submitter.Submit(context.Background(), signed, payrelay.NetworkMainnet)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if !first.Success {
			t.Fatalf("first submission rejected: %q", first.Error)
		}

		second, err := submitter.Submit(context.Background(), signed, payrelay.NetworkMainnet)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if second.Success {
			t.Fatal("replayed authorization settled twice")
		}
		if len(settled) != 1 {
			t.Errorf("facilitator settled %d nonces; want 1", len(settled))
		}
	})

	t.Run("nil authorization is a programmer error", func(t *testing.T) {
		_, err := NewSubmitter("http://localhost:0").Submit(context.Background(), nil, payrelay.NetworkMainnet)
		if err == nil {
			t.Fatal("Submit(nil) succeeded")
		}
	})

	t.Run("unknown network is a programmer error", func(t *testing.T) {
		_, err := NewSubmitter("http://localhost:0").Submit(context.Background(), signed, "polygon")
		if err == nil {
			t.Fatal("Submit with unknown network succeeded")
		}
	})
}
