package paygate

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.Payment{
		SecretKey:   "sk_test_secret",
		ApiUrl:      srv.URL,
		HTTPTimeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_InitializeCheckout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))

		var payload initializePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, int64(500000), payload.Amount)
		assert.Equal(t, "NGN", payload.Currency)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://pay.example/abc123",
				"access_code":       "abc123",
				"reference":         payload.Reference,
			},
		})
	})

	session, err := client.InitializeCheckout(context.Background(), payment.CheckoutRequest{
		Reference: "NG-ref-1",
		Email:     "user@example.com",
		Amount:    money.Must(5000, money.NGN),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc123", session.CheckoutURL)
	assert.Equal(t, "NG-ref-1", session.Reference)
}

func TestClient_InitializeCheckout_ProviderRejects(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Invalid amount",
		})
	})

	_, err := client.InitializeCheckout(context.Background(), payment.CheckoutRequest{
		Reference: "NG-ref-2",
		Amount:    money.Must(1, money.NGN),
	})
	assert.ErrorIs(t, err, payment.ErrCheckoutFailed)
	assert.Contains(t, err.Error(), "Invalid amount")
}

func TestClient_VerifyTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/NG-ref-3", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"id":        991122,
				"status":    "success",
				"reference": "NG-ref-3",
				"amount":    250000,
				"currency":  "NGN",
				"paid_at":   "2026-08-20T10:15:00Z",
				"channel":   "card",
			},
		})
	})

	tx, err := client.VerifyTransaction(context.Background(), "NG-ref-3")
	require.NoError(t, err)
	assert.Equal(t, payment.TxSuccess, tx.Status)
	assert.Equal(t, "991122", tx.ProviderTxID)
	assert.Equal(t, int64(250000), tx.Amount.Amount())
	assert.False(t, tx.PaidAt.IsZero())
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHMACVerifier(t *testing.T) {
	verifier := NewHMACVerifier("whsec_test")
	body := []byte(`{"event":"charge.success","data":{"reference":"NG-ref-4"}}`)

	assert.True(t, verifier.Verify(body, signBody("whsec_test", body)))
	assert.False(t, verifier.Verify(body, signBody("wrong_secret", body)))
	assert.False(t, verifier.Verify(body, ""))

	// Any byte change in the body invalidates the signature.
	sig := signBody("whsec_test", body)
	tampered := append([]byte(nil), body...)
	tampered[10] ^= 1
	assert.False(t, verifier.Verify(tampered, sig))
}

func TestDecodeWebhook(t *testing.T) {
	body := []byte(`{
		"event": "charge.success",
		"data": {
			"id": 7001,
			"reference": "NG-ref-5",
			"status": "success",
			"amount": 100000,
			"currency": "NGN",
			"paid_at": "2026-08-21T09:00:00Z",
			"channel": "bank_transfer"
		}
	}`)
	event, err := DecodeWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, EventChargeSuccess, event.Event)
	assert.Equal(t, "NG-ref-5", event.Transaction.Reference)
	assert.Equal(t, "7001", event.Transaction.ProviderTxID)
	assert.Equal(t, payment.TxSuccess, event.Transaction.Status)

	_, err = DecodeWebhook([]byte("not-json"))
	assert.Error(t, err)
}
