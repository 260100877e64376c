// Package wallet exposes read-side balance and ledger queries.
package wallet

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/repository"
)

// Service reads balances and transaction history.
type Service struct {
	uow        repository.UnitOfWork
	settlement money.Code
	logger     *slog.Logger
}

// New creates a wallet service. settlement is the ledger currency reported
// for users who have no account yet.
func New(uow repository.UnitOfWork, settlement money.Code, logger *slog.Logger) *Service {
	return &Service{uow: uow, settlement: settlement, logger: logger.With("component", "wallet")}
}

// Balance returns the user's account. A user with no ledger activity yet
// gets a zero-balance view, not an error.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (acct *domain.BalanceAccount, err error) {
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		accounts, err := repository.Repo[repository.AccountRepository](uow)
		if err != nil {
			return err
		}
		acct, err = accounts.Get(ctx, userID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			acct = &domain.BalanceAccount{
				UserID:         userID,
				Balance:        money.Zero(s.settlement),
				TotalDeposited: money.Zero(s.settlement),
				TotalSpent:     money.Zero(s.settlement),
			}
			return nil
		}
		return err
	})
	return acct, err
}

// Transactions returns the user's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, limit int) (records []*domain.TransactionRecord, err error) {
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		transactions, err := repository.Repo[repository.TransactionRepository](uow)
		if err != nil {
			return err
		}
		records, err = transactions.ListByUser(ctx, userID, limit)
		return err
	})
	return records, err
}
