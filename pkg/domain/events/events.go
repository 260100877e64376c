// Package events defines the notification events emitted after ledger state
// changes commit. Delivery is best effort; a failed emit never rolls back
// ledger state.
package events

import (
	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/money"
)

// Event is implemented by every notification event.
type Event interface {
	Type() string
	User() uuid.UUID
}

// Event type identifiers.
const (
	TypePurchaseCompleted = "purchase.completed"
	TypePurchaseCancelled = "purchase.cancelled"
	TypeCodeReceived      = "purchase.code_received"
	TypeDepositSettled    = "deposit.settled"
	TypeDepositFailed     = "deposit.failed"
)

// PurchaseCompleted is emitted after a number purchase and its debit commit.
type PurchaseCompleted struct {
	UserID       uuid.UUID
	ActivationID string
	PhoneNumber  string
	ServiceCode  string
	Price        money.Money
	NewBalance   money.Money
}

func (e PurchaseCompleted) Type() string    { return TypePurchaseCompleted }
func (e PurchaseCompleted) User() uuid.UUID { return e.UserID }

// PurchaseCancelled is emitted after a cancellation and its refund commit.
type PurchaseCancelled struct {
	UserID       uuid.UUID
	ActivationID string
	Refund       money.Money
	NewBalance   money.Money
}

func (e PurchaseCancelled) Type() string    { return TypePurchaseCancelled }
func (e PurchaseCancelled) User() uuid.UUID { return e.UserID }

// CodeReceived is emitted when the provider reports an SMS code.
type CodeReceived struct {
	UserID       uuid.UUID
	ActivationID string
	Code         string
}

func (e CodeReceived) Type() string    { return TypeCodeReceived }
func (e CodeReceived) User() uuid.UUID { return e.UserID }

// DepositSettled is emitted after a payment settles and the credit commits.
type DepositSettled struct {
	UserID     uuid.UUID
	Reference  string
	Credited   money.Money
	NewBalance money.Money
}

func (e DepositSettled) Type() string    { return TypeDepositSettled }
func (e DepositSettled) User() uuid.UUID { return e.UserID }

// DepositFailed is emitted when the payment provider reports a terminal failure.
type DepositFailed struct {
	UserID    uuid.UUID
	Reference string
	Reason    string
}

func (e DepositFailed) Type() string    { return TypeDepositFailed }
func (e DepositFailed) User() uuid.UUID { return e.UserID }
