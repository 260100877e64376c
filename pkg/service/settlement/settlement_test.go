package settlement

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	infrabus "github.com/numgate/numgate/infra/eventbus"
	"github.com/numgate/numgate/infra/provider/paygate"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/domain/events"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/payment"
	"github.com/numgate/numgate/pkg/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

type fakePSP struct {
	tx  payment.Transaction
	err error
}

func (f *fakePSP) InitializeCheckout(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	return payment.CheckoutSession{}, errors.New("not implemented")
}

func (f *fakePSP) VerifyTransaction(ctx context.Context, reference string) (payment.Transaction, error) {
	if f.err != nil {
		return payment.Transaction{}, f.err
	}
	return f.tx, nil
}

type fixture struct {
	svc *Service
	psp *fakePSP
	uow *repotest.MemoryUoW
	bus *infrabus.MemoryBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	psp := &fakePSP{}
	uow := repotest.NewMemoryUoW()
	bus := infrabus.NewMemoryBus(logger)
	svc := New(paygate.NewHMACVerifier(webhookSecret), psp, uow, bus, logger)
	return &fixture{svc: svc, psp: psp, uow: uow, bus: bus}
}

func seedPendingDeposit(f *fixture, userID uuid.UUID, reference string) *domain.PaymentDeposit {
	d := &domain.PaymentDeposit{
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
	f.uow.Deposits[reference] = d
	f.uow.SeedAccount(userID, money.Must(0, money.USD))
	return d
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
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

func TestReceive_SettlesDeposit(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	seedPendingDeposit(f, userID, "NG-tx-1")

	body := successBody("NG-tx-1")
	outcome, err := f.svc.Receive(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome)

	d := f.uow.Deposits["NG-tx-1"]
	assert.Equal(t, domain.DepositPaidSettled, d.Status)
	assert.Equal(t, "4242", d.ProviderTxID)
	require.NotNil(t, d.PaidAt)

	acct := f.uow.Accounts[userID]
	assert.Equal(t, int64(500), acct.Balance.Amount())
	assert.Equal(t, int64(500), acct.TotalDeposited.Amount())

	require.Len(t, f.uow.Transactions, 1)
	record := f.uow.Transactions[0]
	assert.Equal(t, domain.TxDeposit, record.Type)
	assert.Equal(t, int64(0), record.BalanceBefore.Amount())
	assert.Equal(t, int64(500), record.BalanceAfter.Amount())

	require.Len(t, f.uow.WebhookLogs, 1)
	entry := f.uow.WebhookLogs[0]
	assert.True(t, entry.SignatureValid)
	assert.True(t, entry.Processed)
	assert.Equal(t, "NG-tx-1", entry.Reference)

	published := f.bus.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeDepositSettled, published[0].Type())
}

func TestReceive_DuplicateDeliveryCreditsOnce(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	seedPendingDeposit(f, userID, "NG-tx-2")

	body := successBody("NG-tx-2")
	outcome, err := f.svc.Receive(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome)

	outcome, err = f.svc.Receive(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)

	assert.Equal(t, int64(500), f.uow.Accounts[userID].Balance.Amount())
	assert.Len(t, f.uow.Transactions, 1)
	// Both deliveries are in the audit log.
	assert.Len(t, f.uow.WebhookLogs, 2)
}

func TestReceive_InvalidSignatureLoggedNotProcessed(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	seedPendingDeposit(f, userID, "NG-tx-3")

	body := successBody("NG-tx-3")
	outcome, err := f.svc.Receive(context.Background(), body, "bad-signature")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Equal(t, OutcomeRejected, outcome)

	// Logged, flagged invalid, ledger untouched.
	require.Len(t, f.uow.WebhookLogs, 1)
	entry := f.uow.WebhookLogs[0]
	assert.False(t, entry.SignatureValid)
	assert.False(t, entry.Processed)
	assert.NotEmpty(t, entry.ProcessingErr)
	assert.Equal(t, int64(0), f.uow.Accounts[userID].Balance.Amount())
	assert.Equal(t, domain.DepositPendingUnsettled, f.uow.Deposits["NG-tx-3"].Status)
}

func TestReceive_ChargeFailedMarksDeposit(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	seedPendingDeposit(f, userID, "NG-tx-4")

	body := fmt.Appendf(nil, `{
		"event": "charge.failed",
		"data": {"id": 7, "reference": %q, "status": "failed", "amount": 500000, "currency": "NGN"}
	}`, "NG-tx-4")
	outcome, err := f.svc.Receive(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	assert.Equal(t, domain.DepositFailed, f.uow.Deposits["NG-tx-4"].Status)
	assert.Equal(t, int64(0), f.uow.Accounts[userID].Balance.Amount())
	assert.Empty(t, f.uow.Transactions)

	published := f.bus.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeDepositFailed, published[0].Type())
}

func TestReceive_UnknownEventIgnored(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"event": "transfer.success", "data": {"reference": "NG-x"}}`)
	outcome, err := f.svc.Receive(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, f.uow.Transactions)
}

func TestReceive_UnknownReferenceRejected(t *testing.T) {
	f := newFixture(t)

	body := successBody("NG-missing")
	outcome, err := f.svc.Receive(context.Background(), body, sign(body))
	assert.ErrorIs(t, err, domain.ErrDepositNotFound)
	assert.Equal(t, OutcomeRejected, outcome)
}

func TestVerify_ConvergesWithWebhookPath(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	seedPendingDeposit(f, userID, "NG-tx-5")
	f.psp.tx = payment.Transaction{
		ProviderTxID: "9001",
		Reference:    "NG-tx-5",
		Status:       payment.TxSuccess,
		Amount:       money.Must(5000, money.NGN),
		PaidAt:       time.Now().UTC(),
	}

	// Manual verification settles first.
	outcome, err := f.svc.Verify(context.Background(), userID, "NG-tx-5")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, outcome)
	assert.Equal(t, int64(500), f.uow.Accounts[userID].Balance.Amount())

	// The late webhook for the same reference is a no-op.
	body := successBody("NG-tx-5")
	outcome, err = f.svc.Receive(context.Background(), body, sign(body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)
	assert.Equal(t, int64(500), f.uow.Accounts[userID].Balance.Amount())
	assert.Len(t, f.uow.Transactions, 1)
}

func TestVerify_PendingProviderStatus(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	seedPendingDeposit(f, userID, "NG-tx-6")
	f.psp.tx = payment.Transaction{Reference: "NG-tx-6", Status: payment.TxPending}

	outcome, err := f.svc.Verify(context.Background(), userID, "NG-tx-6")
	assert.ErrorIs(t, err, domain.ErrPaymentNotActivated)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestVerify_FailedStatusMarksDeposit(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	seedPendingDeposit(f, userID, "NG-tx-7")
	f.psp.tx = payment.Transaction{ProviderTxID: "9002", Reference: "NG-tx-7", Status: payment.TxAbandoned}

	outcome, err := f.svc.Verify(context.Background(), userID, "NG-tx-7")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, domain.DepositFailed, f.uow.Deposits["NG-tx-7"].Status)
}

func TestReceive_AmountMismatchNotCredited(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	seedPendingDeposit(f, userID, "NG-tx-9")

	// Signature-valid success for a partial charge: 100000 minor units
	// against the 500000 that was initiated.
	body := fmt.Appendf(nil, `{
		"event": "charge.success",
		"data": {
			"id": 4243,
			"reference": %q,
			"status": "success",
			"amount": 100000,
			"currency": "NGN",
			"paid_at": "2026-08-22T12:00:00Z",
			"channel": "card"
		}
	}`, "NG-tx-9")

	outcome, err := f.svc.Receive(context.Background(), body, sign(body))
	assert.ErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.Equal(t, OutcomeRejected, outcome)

	assert.Equal(t, domain.DepositPendingUnsettled, f.uow.Deposits["NG-tx-9"].Status)
	assert.True(t, f.uow.Accounts[userID].Balance.IsZero())
	assert.Empty(t, f.uow.Transactions)

	require.Len(t, f.uow.WebhookLogs, 1)
	entry := f.uow.WebhookLogs[0]
	assert.True(t, entry.SignatureValid)
	assert.False(t, entry.Processed)
	assert.Contains(t, entry.ProcessingErr, "reconciliation")
}

func TestVerify_ForeignReferenceHidden(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	seedPendingDeposit(f, owner, "NG-tx-8")
	f.psp.tx = payment.Transaction{
		ProviderTxID: "9003",
		Reference:    "NG-tx-8",
		Status:       payment.TxSuccess,
		PaidAt:       time.Now().UTC(),
	}

	outcome, err := f.svc.Verify(context.Background(), uuid.New(), "NG-tx-8")
	assert.ErrorIs(t, err, domain.ErrDepositNotFound)
	assert.Equal(t, OutcomeRejected, outcome)

	// No provider call, no settlement.
	assert.Equal(t, domain.DepositPendingUnsettled, f.uow.Deposits["NG-tx-8"].Status)
	assert.True(t, f.uow.Accounts[owner].Balance.IsZero())
}
