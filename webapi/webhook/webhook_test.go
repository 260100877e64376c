package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	infrabus "github.com/numgate/numgate/infra/eventbus"
	"github.com/numgate/numgate/infra/provider/paygate"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/payment"
	"github.com/numgate/numgate/pkg/repository/repotest"
	"github.com/numgate/numgate/pkg/service/settlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

type stubPSP struct{}

func (stubPSP) InitializeCheckout(context.Context, payment.CheckoutRequest) (payment.CheckoutSession, error) {
	return payment.CheckoutSession{}, errors.New("not implemented")
}

func (stubPSP) VerifyTransaction(context.Context, string) (payment.Transaction, error) {
	return payment.Transaction{}, errors.New("not implemented")
}

func newTestApp(t *testing.T) (*fiber.App, *repotest.MemoryUoW) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uow := repotest.NewMemoryUoW()
	svc := settlement.New(
		paygate.NewHMACVerifier(webhookSecret),
		stubPSP{}, uow, infrabus.NewMemoryBus(logger), logger,
	)
	app := fiber.New()
	app.Post("/webhooks/payment", PaymentHandler(svc, logger))
	return app, uow
}

func seedDeposit(uow *repotest.MemoryUoW, reference string) {
	userID := uuid.New()
	uow.SeedAccount(userID, money.Must(0, money.USD))
	uow.Deposits[reference] = &domain.PaymentDeposit{
		ID:           uuid.New(),
		UserID:       userID,
		Reference:    reference,
		Requested:    money.Must(5000, money.NGN),
		Settlement:   money.Must(5.00, money.USD),
		ExchangeRate: 0.001,
		Status:       domain.DepositPendingUnsettled,
		ExpiresAt:    time.Now().UTC().Add(30 * time.Minute),
		CreatedAt:    time.Now().UTC(),
	}
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, app *fiber.App, body []byte, signature string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	var payload map[string]any
	if resp.StatusCode == fiber.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	}
	return resp.StatusCode, payload
}

func successBody(reference string) []byte {
	return fmt.Appendf(nil, `{
		"event": "charge.success",
		"data": {
			"id": 4242,
			"reference": %q,
			"status": "success",
			"amount": 500000,
			"currency": "NGN",
			"paid_at": "2026-08-22T12:00:00Z",
			"channel": "card"
		}
	}`, reference)
}

func TestPaymentHandler_SettlesAndAcknowledges(t *testing.T) {
	app, uow := newTestApp(t)
	seedDeposit(uow, "NG-hook-1")

	body := successBody("NG-hook-1")
	status, payload := post(t, app, body, sign(body))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(settlement.OutcomeSettled), payload["outcome"])
	assert.Equal(t, domain.DepositPaidSettled, uow.Deposits["NG-hook-1"].Status)
}

func TestPaymentHandler_BadSignatureStillAcknowledged(t *testing.T) {
	app, uow := newTestApp(t)
	seedDeposit(uow, "NG-hook-2")

	body := successBody("NG-hook-2")
	status, payload := post(t, app, body, "deadbeef")

	// Logged, so acknowledged; the deposit must remain untouched.
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(settlement.OutcomeRejected), payload["outcome"])
	assert.Equal(t, domain.DepositPendingUnsettled, uow.Deposits["NG-hook-2"].Status)
	require.Len(t, uow.WebhookLogs, 1)
	assert.False(t, uow.WebhookLogs[0].SignatureValid)
}

func TestPaymentHandler_AuditLogDownReturns500(t *testing.T) {
	app, uow := newTestApp(t)
	seedDeposit(uow, "NG-hook-3")
	uow.WebhookLogErr = errors.New("db down")

	body := successBody("NG-hook-3")
	status, _ := post(t, app, body, sign(body))

	// Unlogged deliveries must not be acknowledged; the provider redelivers.
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, domain.DepositPendingUnsettled, uow.Deposits["NG-hook-3"].Status)
}

func TestPaymentHandler_DuplicateDelivery(t *testing.T) {
	app, uow := newTestApp(t)
	seedDeposit(uow, "NG-hook-4")

	body := successBody("NG-hook-4")
	status, payload := post(t, app, body, sign(body))
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, string(settlement.OutcomeSettled), payload["outcome"])

	status, payload = post(t, app, body, sign(body))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, string(settlement.OutcomeAlreadyProcessed), payload["outcome"])
	assert.Len(t, uow.WebhookLogs, 2)
}
