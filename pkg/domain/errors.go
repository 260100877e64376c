package domain

import "errors"

// Ledger errors.
var (
	// ErrAccountNotFound is returned when a balance account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientBalance is returned when a debit would take the balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrConcurrentModification is returned when an optimistic update lost a race.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Purchase errors.
var (
	// ErrPurchaseNotFound is returned when no purchase matches the activation id.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrServiceUnavailable is returned when the provider has no price for a service.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrPriceExceeded is returned when the computed price exceeds the caller's ceiling.
	ErrPriceExceeded = errors.New("price exceeds limit")
	// ErrNoInventory is returned when the provider has no numbers for the request.
	ErrNoInventory = errors.New("no numbers available")
	// ErrCancelTooEarly is returned when cancellation is requested before the dwell time.
	ErrCancelTooEarly = errors.New("cancellation not yet permitted")
	// ErrCancelNotAllowed is returned when the purchase is in a terminal state.
	ErrCancelNotAllowed = errors.New("cancellation not allowed")
	// ErrInvalidTransition is returned for a disallowed purchase status transition.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Settlement errors.
var (
	// ErrDepositNotFound is returned when no deposit matches the transaction reference.
	ErrDepositNotFound = errors.New("deposit not found")
	// ErrInvalidSignature is returned when a webhook signature does not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrAlreadyProcessed marks a duplicate settlement. It is a successful no-op,
	// not a fault; callers treat it as an idempotent success.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrPaymentNotActivated is returned when the provider reports the payment
	// was never completed.
	ErrPaymentNotActivated = errors.New("payment not activated")
	// ErrDepositNotPending is returned when a terminal deposit is cancelled or re-settled.
	ErrDepositNotPending = errors.New("deposit is not pending")
)

// ErrReconciliationRequired marks a provider-side mutation whose paired ledger
// write failed. It must never be swallowed; operators reconcile manually.
var ErrReconciliationRequired = errors.New("provider and ledger state diverged, manual reconciliation required")
