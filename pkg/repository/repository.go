// Package repository defines the data-access contracts for the ledger and its
// satellite records. Implementations live in infra/repository; services reach
// them only through the UnitOfWork so every mutation shares one transaction.
package repository

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
)

// AccountRepository accesses balance accounts. The check-and-mutate operations
// are atomic at the row level; a read-then-write against a stale balance is
// not expressible through this interface.
type AccountRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.BalanceAccount, error)
	// GetForUpdate locks the account row for the rest of the transaction,
	// creating it with a zero balance when absent.
	GetForUpdate(ctx context.Context, userID uuid.UUID, currency money.Code) (*domain.BalanceAccount, error)
	// DebitIfSufficient atomically debits the balance and bumps cumulative
	// spend, failing with domain.ErrInsufficientBalance when the balance is
	// short. Returns the post-debit account state.
	DebitIfSufficient(ctx context.Context, userID uuid.UUID, amount money.Money) (*domain.BalanceAccount, error)
	// CreditDeposit credits the balance and bumps cumulative deposits.
	CreditDeposit(ctx context.Context, userID uuid.UUID, amount money.Money) (*domain.BalanceAccount, error)
	// CreditRefund credits the balance without touching cumulative deposits.
	CreditRefund(ctx context.Context, userID uuid.UUID, amount money.Money) (*domain.BalanceAccount, error)
}

// TransactionRepository appends and reads immutable ledger entries.
type TransactionRepository interface {
	Create(ctx context.Context, record *domain.TransactionRecord) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.TransactionRecord, error)
	GetByReference(ctx context.Context, reference string) (*domain.TransactionRecord, error)
}

// PurchaseRepository accesses leased-number records.
type PurchaseRepository interface {
	Create(ctx context.Context, purchase *domain.NumberPurchase) error
	GetByActivationID(ctx context.Context, activationID string) (*domain.NumberPurchase, error)
	GetForUser(ctx context.Context, userID uuid.UUID, activationID string) (*domain.NumberPurchase, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.NumberPurchase, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.NumberPurchase, error)
	Update(ctx context.Context, purchase *domain.NumberPurchase) error
}

// DepositRepository accesses payment checkout sessions.
type DepositRepository interface {
	Create(ctx context.Context, deposit *domain.PaymentDeposit) error
	// GetByReference loads a deposit; inside a transaction the row is locked
	// so concurrent settlements of the same reference serialize.
	GetByReference(ctx context.Context, reference string) (*domain.PaymentDeposit, error)
	Update(ctx context.Context, deposit *domain.PaymentDeposit) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.PaymentDeposit, error)
}

// WebhookLogRepository records inbound payment notifications.
type WebhookLogRepository interface {
	Create(ctx context.Context, entry *domain.WebhookLogEntry) error
	Update(ctx context.Context, entry *domain.WebhookLogEntry) error
}

// UnitOfWork provides the transaction boundary and repository access in one
// abstraction, so all repositories inside Do share the same DB session and
// commit or roll back together.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error
	GetRepository(repoType reflect.Type) (any, error)
}

// Repo resolves a typed repository from a UnitOfWork.
func Repo[T any](uow UnitOfWork) (T, error) {
	var zero T
	raw, err := uow.GetRepository(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("repository has unexpected type %T", raw)
	}
	return typed, nil
}
