package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseStatusTransitions(t *testing.T) {
	tests := []struct {
		from    domain.PurchaseStatus
		to      domain.PurchaseStatus
		allowed bool
	}{
		{domain.PurchaseWaiting, domain.PurchaseReceived, true},
		{domain.PurchaseWaiting, domain.PurchaseCancelled, true},
		{domain.PurchaseWaiting, domain.PurchaseExpired, true},
		{domain.PurchaseWaiting, domain.PurchaseUsed, false},
		{domain.PurchaseReceived, domain.PurchaseUsed, true},
		{domain.PurchaseReceived, domain.PurchaseCancelled, true},
		{domain.PurchaseReceived, domain.PurchaseExpired, false},
		{domain.PurchaseCancelled, domain.PurchaseWaiting, false},
		{domain.PurchaseExpired, domain.PurchaseReceived, false},
		{domain.PurchaseUsed, domain.PurchaseCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			p := &domain.NumberPurchase{Status: tt.from}
			err := p.Transition(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, p.Status)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidTransition)
				assert.Equal(t, tt.from, p.Status)
			}
		})
	}
}

func TestPurchaseTerminalStates(t *testing.T) {
	assert.True(t, domain.PurchaseCancelled.IsTerminal())
	assert.True(t, domain.PurchaseExpired.IsTerminal())
	assert.True(t, domain.PurchaseUsed.IsTerminal())
	assert.False(t, domain.PurchaseWaiting.IsTerminal())
	assert.False(t, domain.PurchaseReceived.IsTerminal())
}

func TestPurchaseExpiry(t *testing.T) {
	now := time.Now().UTC()
	p := &domain.NumberPurchase{
		Status:    domain.PurchaseWaiting,
		ExpiresAt: now.Add(-time.Minute),
	}
	assert.True(t, p.IsExpired(now))

	p.Status = domain.PurchaseReceived
	assert.False(t, p.IsExpired(now), "only waiting purchases expire")
}

func TestDepositSettleIsExactlyOnce(t *testing.T) {
	d := &domain.PaymentDeposit{
		ID:        uuid.New(),
		Reference: "NG-test",
		Status:    domain.DepositPendingUnsettled,
	}
	paidAt := time.Now().UTC()

	require.NoError(t, d.Settle("psp-123", paidAt))
	assert.Equal(t, domain.DepositPaidSettled, d.Status)
	assert.Equal(t, "psp-123", d.ProviderTxID)
	require.NotNil(t, d.PaidAt)

	// A second settle is the idempotent no-op outcome, not a state change.
	err := d.Settle("psp-456", paidAt)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Equal(t, "psp-123", d.ProviderTxID)
}

func TestDepositCancelOnlyFromPending(t *testing.T) {
	d := &domain.PaymentDeposit{Status: domain.DepositPendingUnsettled}
	require.NoError(t, d.Cancel())
	assert.Equal(t, domain.DepositCancelled, d.Status)

	for _, s := range []domain.DepositStatus{
		domain.DepositPaidSettled, domain.DepositFailed, domain.DepositCancelled,
	} {
		d := &domain.PaymentDeposit{Status: s}
		assert.Error(t, d.Cancel(), "cancel from %s must fail", s)
	}
}

func TestDepositFail(t *testing.T) {
	d := &domain.PaymentDeposit{Status: domain.DepositPendingUnsettled}
	require.NoError(t, d.Fail("psp-789"))
	assert.Equal(t, domain.DepositFailed, d.Status)

	settled := &domain.PaymentDeposit{Status: domain.DepositPaidSettled}
	assert.ErrorIs(t, settled.Fail("x"), domain.ErrAlreadyProcessed)
}

func TestCancellableAfter(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &domain.NumberPurchase{PurchasedAt: at}
	assert.Equal(t, at.Add(4*time.Minute), p.CancellableAfter(4*time.Minute))
}

func TestMoneyPairing(t *testing.T) {
	// A refund record's balance delta must equal the refund amount.
	before := money.Must(1.00, money.USD)
	refund := money.Must(0.50, money.USD)
	after, err := before.Add(refund)
	require.NoError(t, err)

	rec := domain.TransactionRecord{
		Type:          domain.TxRefund,
		Amount:        refund,
		BalanceBefore: before,
		BalanceAfter:  after,
	}
	delta, err := rec.BalanceAfter.Sub(rec.BalanceBefore)
	require.NoError(t, err)
	assert.True(t, delta.Equals(rec.Amount))
}
