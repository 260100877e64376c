package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/money"
)

// PurchaseStatus is the lifecycle state of a leased number.
type PurchaseStatus string

// Number purchase lifecycle states. Cancelled, expired and used are terminal.
const (
	PurchaseWaiting   PurchaseStatus = "waiting"
	PurchaseReceived  PurchaseStatus = "received"
	PurchaseCancelled PurchaseStatus = "cancelled"
	PurchaseExpired   PurchaseStatus = "expired"
	PurchaseUsed      PurchaseStatus = "used"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s PurchaseStatus) IsTerminal() bool {
	switch s {
	case PurchaseCancelled, PurchaseExpired, PurchaseUsed:
		return true
	}
	return false
}

// purchaseTransitions enumerates the allowed status edges.
var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseWaiting:  {PurchaseReceived, PurchaseCancelled, PurchaseExpired},
	PurchaseReceived: {PurchaseUsed, PurchaseCancelled},
}

// CanTransition reports whether from → to is an allowed edge.
func (s PurchaseStatus) CanTransition(to PurchaseStatus) bool {
	for _, next := range purchaseTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// NumberPurchase represents one leased virtual number.
type NumberPurchase struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ActivationID string // provider-assigned, unique
	PhoneNumber  string
	CountryCode  string
	ServiceCode  string
	Price        money.Money // total charged, markup included
	Status       PurchaseStatus
	SMSCode      string // empty until received
	SMSText      string
	PurchasedAt  time.Time
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// Transition moves the purchase to a new status, enforcing the state machine.
func (p *NumberPurchase) Transition(to PurchaseStatus) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IsExpired reports whether a waiting purchase has passed its expiry.
func (p *NumberPurchase) IsExpired(now time.Time) bool {
	return p.Status == PurchaseWaiting && now.After(p.ExpiresAt)
}

// CancellableAfter returns the earliest instant cancellation is permitted.
func (p *NumberPurchase) CancellableAfter(dwell time.Duration) time.Time {
	return p.PurchasedAt.Add(dwell)
}
