package paygate

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/payment"
)

// HMACVerifier validates webhook signatures. The provider signs the raw
// request body with HMAC-SHA512 over the shared webhook secret; verification
// must therefore run on the exact bytes received, before any JSON decoding.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the given webhook secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify implements payment.SignatureVerifier.
func (v *HMACVerifier) Verify(body []byte, signature string) bool {
	if len(v.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Event names carried in webhook notifications.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// WebhookEvent is one decoded provider notification.
type WebhookEvent struct {
	Event       string
	Transaction payment.Transaction
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
		Channel   string `json:"channel"`
	} `json:"data"`
}

// DecodeWebhook parses a raw webhook body into a WebhookEvent.
func DecodeWebhook(body []byte) (WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("malformed webhook payload: %w", err)
	}
	event := WebhookEvent{
		Event: payload.Event,
		Transaction: payment.Transaction{
			ProviderTxID: fmt.Sprintf("%d", payload.Data.ID),
			Reference:    payload.Data.Reference,
			Status:       payment.TxStatus(payload.Data.Status),
			Amount:       money.NewFromData(payload.Data.Amount, payload.Data.Currency),
			Channel:      payload.Data.Channel,
		},
	}
	if payload.Data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, payload.Data.PaidAt); err == nil {
			event.Transaction.PaidAt = paidAt
		}
	}
	return event, nil
}
