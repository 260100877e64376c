package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/money"
)

// BalanceAccount is the per-user balance ledger head. One exists per user,
// created lazily on first access and never deleted.
//
// Invariants:
//   - Balance is never negative.
//   - Every mutation is paired with exactly one TransactionRecord.
type BalanceAccount struct {
	UserID         uuid.UUID
	Balance        money.Money
	TotalDeposited money.Money
	TotalSpent     money.Money
	LastTxAt       time.Time
	CreatedAt      time.Time
}

// TxType classifies a ledger entry.
type TxType string

// Ledger entry types.
const (
	TxDeposit  TxType = "deposit"
	TxPurchase TxType = "purchase"
	TxRefund   TxType = "refund"
)

// TxStatus is the terminal status recorded on a ledger entry.
type TxStatus string

// Ledger entry statuses.
const (
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

// TransactionRecord is an immutable, append-only ledger entry. BalanceBefore and
// BalanceAfter must match the account mutation that produced the record.
type TransactionRecord struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Type          TxType
	Amount        money.Money
	BalanceBefore money.Money
	BalanceAfter  money.Money
	Reference     string
	Description   string
	Status        TxStatus
	CreatedAt     time.Time
}
