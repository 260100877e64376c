// Package deposit opens payment checkout sessions and manages their
// pre-settlement lifecycle. Settlement itself lives in pkg/service/settlement.
package deposit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/exchange"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/payment"
	"github.com/numgate/numgate/pkg/repository"
)

// Service initiates and expires payment deposits.
type Service struct {
	psp       payment.Provider
	converter *exchange.Converter
	uow       repository.UnitOfWork
	cfg       *config.Payment
	logger    *slog.Logger
}

// New creates a deposit service.
func New(
	psp payment.Provider,
	converter *exchange.Converter,
	uow repository.UnitOfWork,
	cfg *config.Payment,
	logger *slog.Logger,
) *Service {
	return &Service{
		psp:       psp,
		converter: converter,
		uow:       uow,
		cfg:       cfg,
		logger:    logger.With("component", "deposit"),
	}
}

// NewReference generates a globally unique, locally issued transaction
// reference. The provider is always handed our reference, never the other
// way around, so settlement can key on it unconditionally.
func NewReference() string {
	return "NG-" + uuid.NewString()
}

// Initiate opens a checkout session for the amount and records the deposit
// as PENDING_UNSETTLED. The returned deposit carries the hosted checkout URL.
func (s *Service) Initiate(ctx context.Context, userID uuid.UUID, email string, amount money.Money) (d *domain.PaymentDeposit, err error) {
	minDeposit := money.Must(s.cfg.MinDeposit, amount.Currency())
	if short, err := amount.LessThan(minDeposit); err != nil {
		return nil, err
	} else if short {
		return nil, fmt.Errorf("%w: minimum deposit is %v", money.ErrInvalidAmount, s.cfg.MinDeposit)
	}

	settlement, rate, err := s.converter.ToSettlement(amount)
	if err != nil {
		return nil, fmt.Errorf("settlement conversion: %w", err)
	}

	reference := NewReference()
	now := time.Now().UTC()
	d = &domain.PaymentDeposit{
		ID:           uuid.New(),
		UserID:       userID,
		Reference:    reference,
		Requested:    amount,
		Settlement:   settlement,
		ExchangeRate: rate,
		Status:       domain.DepositPendingUnsettled,
		ExpiresAt:    now.Add(s.cfg.DepositExpiry),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	session, err := s.psp.InitializeCheckout(ctx, payment.CheckoutRequest{
		Reference:   reference,
		Email:       email,
		Amount:      amount,
		CallbackURL: s.cfg.CallbackURL,
	})
	if err != nil {
		return nil, err
	}
	d.CheckoutURL = session.CheckoutURL

	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		deposits, err := repository.Repo[repository.DepositRepository](uow)
		if err != nil {
			return err
		}
		return deposits.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("deposit initiated",
		"user_id", userID, "reference", reference, "amount", amount.Amount())
	return d, nil
}

// Cancel abandons a pending deposit. Settled or failed deposits are immutable.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, reference string) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		deposits, err := repository.Repo[repository.DepositRepository](uow)
		if err != nil {
			return err
		}
		d, err := deposits.GetByReference(ctx, reference)
		if err != nil {
			return err
		}
		if d.UserID != userID {
			return domain.ErrDepositNotFound
		}
		if err := d.Cancel(); err != nil {
			return err
		}
		return deposits.Update(ctx, d)
	})
}

// ExpireSweep cancels pending deposits past their expiry. Invoked
// periodically by the background job runner.
func (s *Service) ExpireSweep(ctx context.Context, batchSize int) (int, error) {
	cancelled := 0
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		deposits, err := repository.Repo[repository.DepositRepository](uow)
		if err != nil {
			return err
		}
		overdue, err := deposits.ListExpired(ctx, time.Now().UTC(), batchSize)
		if err != nil {
			return err
		}
		for _, d := range overdue {
			if err := d.Cancel(); err != nil {
				continue // settled meanwhile, leave it alone
			}
			if err := deposits.Update(ctx, d); err != nil {
				return err
			}
			cancelled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if cancelled > 0 {
		s.logger.Info("expired overdue deposits", "count", cancelled)
	}
	return cancelled, nil
}
