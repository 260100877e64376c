package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/money"
)

// DepositStatus is the settlement state of a payment checkout session.
type DepositStatus string

// Payment deposit states. PaidSettled and Failed are terminal; Cancelled is
// reachable from PendingUnsettled only.
const (
	DepositPendingUnsettled DepositStatus = "PENDING_UNSETTLED"
	DepositPaidSettled      DepositStatus = "PAID_SETTLED"
	DepositFailed           DepositStatus = "FAILED"
	DepositCancelled        DepositStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s DepositStatus) IsTerminal() bool {
	return s == DepositPaidSettled || s == DepositFailed
}

// PaymentDeposit represents one payment-provider checkout session.
//
// Invariant: exactly one PENDING_UNSETTLED → PAID_SETTLED transition may ever
// occur per Reference; later notifications for the same reference are no-ops.
type PaymentDeposit struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Reference      string // locally generated, globally unique
	ProviderTxID   string // empty until known
	Requested      money.Money
	Settlement     money.Money // settlement-currency equivalent
	ExchangeRate   float64
	Status         DepositStatus
	CheckoutURL    string
	ExpiresAt      time.Time
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Settle transitions the deposit to PAID_SETTLED.
// Returns ErrAlreadyProcessed when the deposit has settled before, so both the
// webhook and the manual verification path converge on the same outcome.
func (d *PaymentDeposit) Settle(providerTxID string, paidAt time.Time) error {
	switch d.Status {
	case DepositPaidSettled:
		return ErrAlreadyProcessed
	case DepositFailed, DepositCancelled:
		return fmt.Errorf("%w: %s", ErrDepositNotPending, d.Status)
	}
	d.Status = DepositPaidSettled
	d.ProviderTxID = providerTxID
	d.PaidAt = &paidAt
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail transitions the deposit to FAILED without touching any balance.
func (d *PaymentDeposit) Fail(providerTxID string) error {
	if d.Status.IsTerminal() {
		if d.Status == DepositPaidSettled {
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("%w: %s", ErrDepositNotPending, d.Status)
	}
	d.Status = DepositFailed
	d.ProviderTxID = providerTxID
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel transitions the deposit to CANCELLED. Only permitted while pending.
func (d *PaymentDeposit) Cancel() error {
	if d.Status != DepositPendingUnsettled {
		return fmt.Errorf("%w: %s", ErrDepositNotPending, d.Status)
	}
	d.Status = DepositCancelled
	d.UpdatedAt = time.Now().UTC()
	return nil
}
