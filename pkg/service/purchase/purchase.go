// Package purchase orchestrates the lifecycle of a leased virtual number:
// lease plus debit in one transaction, dwell-gated cancellation with refund,
// code polling and completion.
//
// The ordering rule inside Purchase is deliberate: the provider lease happens
// inside the database transaction, before the debit commits. A provider
// failure then rolls everything back, and a ledger failure after a
// successful lease triggers a compensating cancel. Only when that cancel
// also fails is the purchase flagged for reconciliation.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/config"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/domain/events"
	"github.com/numgate/numgate/pkg/eventbus"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/provider/sms"
	"github.com/numgate/numgate/pkg/repository"
)

// NumberGateway is the provider surface this service needs. Implemented by
// *dispatch.Gateway.
type NumberGateway interface {
	LeaseNumber(ctx context.Context, service, country, operator string) (sms.Lease, error)
	PollActivation(ctx context.Context, activationID string) (sms.Activation, error)
	CancelActivation(ctx context.Context, activationID string) error
	CompleteActivation(ctx context.Context, activationID string) error
}

// Quoter resolves the customer price for a pair. Implemented by
// *pricing.Service.
type Quoter interface {
	Quote(ctx context.Context, service, country string, maxPrice *money.Money) (money.Money, error)
}

// Service orchestrates number purchases against the provider and the ledger.
type Service struct {
	gateway   NumberGateway
	quoter    Quoter
	uow       repository.UnitOfWork
	bus       eventbus.Bus
	smsCfg    *config.SMSProvider
	cancelCfg *config.Cancellation
	logger    *slog.Logger
}

// New creates a purchase service.
func New(
	gateway NumberGateway,
	quoter Quoter,
	uow repository.UnitOfWork,
	bus eventbus.Bus,
	smsCfg *config.SMSProvider,
	cancelCfg *config.Cancellation,
	logger *slog.Logger,
) *Service {
	return &Service{
		gateway:   gateway,
		quoter:    quoter,
		uow:       uow,
		bus:       bus,
		smsCfg:    smsCfg,
		cancelCfg: cancelCfg,
		logger:    logger.With("component", "purchase"),
	}
}

// Purchase quotes, leases and debits in one atomic flow. maxPrice, when
// non-nil, caps the accepted quote.
func (s *Service) Purchase(
	ctx context.Context,
	userID uuid.UUID,
	service, country, operator string,
	maxPrice *money.Money,
) (p *domain.NumberPurchase, err error) {
	logger := s.logger.With("user_id", userID, "service", service, "country", country)

	price, err := s.quoter.Quote(ctx, service, country, maxPrice)
	if err != nil {
		return nil, err
	}

	var completedEvent *events.PurchaseCompleted
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		accounts, err := repository.Repo[repository.AccountRepository](uow)
		if err != nil {
			return err
		}
		purchases, err := repository.Repo[repository.PurchaseRepository](uow)
		if err != nil {
			return err
		}
		transactions, err := repository.Repo[repository.TransactionRepository](uow)
		if err != nil {
			return err
		}

		// Fail fast on an obviously short balance before touching the provider.
		acct, err := accounts.GetForUpdate(ctx, userID, price.Currency())
		if err != nil {
			return err
		}
		if short, err := acct.Balance.LessThan(price); err != nil {
			return err
		} else if short {
			return domain.ErrInsufficientBalance
		}

		lease, err := s.gateway.LeaseNumber(ctx, service, country, operator)
		if err != nil {
			return fmt.Errorf("lease number: %w", err)
		}

		balanceBefore := acct.Balance
		acct, err = accounts.DebitIfSufficient(ctx, userID, price)
		if err != nil {
			// The provider already holds the lease; release it so the number
			// is not billed against our provider balance.
			s.compensateLease(lease.ActivationID, logger)
			return err
		}

		now := time.Now().UTC()
		p = &domain.NumberPurchase{
			ID:           uuid.New(),
			UserID:       userID,
			ActivationID: lease.ActivationID,
			PhoneNumber:  lease.PhoneNumber,
			CountryCode:  country,
			ServiceCode:  service,
			Price:        price,
			Status:       domain.PurchaseWaiting,
			PurchasedAt:  now,
			ExpiresAt:    now.Add(s.smsCfg.ActivationExpiry),
			UpdatedAt:    now,
		}
		if err := purchases.Create(ctx, p); err != nil {
			s.compensateLease(lease.ActivationID, logger)
			return err
		}
		record := &domain.TransactionRecord{
			ID:            uuid.New(),
			UserID:        userID,
			Type:          domain.TxPurchase,
			Amount:        price,
			BalanceBefore: balanceBefore,
			BalanceAfter:  acct.Balance,
			Reference:     lease.ActivationID,
			Description:   fmt.Sprintf("number %s for %s", lease.PhoneNumber, service),
			Status:        domain.TxCompleted,
			CreatedAt:     now,
		}
		if err := transactions.Create(ctx, record); err != nil {
			s.compensateLease(lease.ActivationID, logger)
			return err
		}

		completedEvent = &events.PurchaseCompleted{
			UserID:       userID,
			ActivationID: lease.ActivationID,
			PhoneNumber:  lease.PhoneNumber,
			ServiceCode:  service,
			Price:        price,
			NewBalance:   acct.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Notify only once the debit is committed; a rolled-back purchase must
	// never be announced.
	s.emit(ctx, *completedEvent)
	logger.Info("number purchased", "activation_id", p.ActivationID, "price", price.Amount())
	return p, nil
}

// compensateLease releases a provider lease after a ledger failure. If the
// release itself fails the provider and the ledger disagree, which is the one
// state operators must resolve by hand.
func (s *Service) compensateLease(activationID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.smsCfg.HTTPTimeout)
	defer cancel()
	if err := s.gateway.CancelActivation(ctx, activationID); err != nil {
		logger.Error("lease compensation failed, manual reconciliation required",
			"activation_id", activationID, "error", err)
	}
}

// Cancel cancels a purchase after the dwell window and refunds per policy.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, activationID string) (refund money.Money, err error) {
	logger := s.logger.With("user_id", userID, "activation_id", activationID)

	var cancelledEvent *events.PurchaseCancelled
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		purchases, err := repository.Repo[repository.PurchaseRepository](uow)
		if err != nil {
			return err
		}
		accounts, err := repository.Repo[repository.AccountRepository](uow)
		if err != nil {
			return err
		}
		transactions, err := repository.Repo[repository.TransactionRepository](uow)
		if err != nil {
			return err
		}

		p, err := purchases.GetForUser(ctx, userID, activationID)
		if err != nil {
			return err
		}
		if !p.Status.CanTransition(domain.PurchaseCancelled) {
			return fmt.Errorf("%w: status %s", domain.ErrCancelNotAllowed, p.Status)
		}
		now := time.Now().UTC()
		if earliest := p.CancellableAfter(s.cancelCfg.DwellTime); now.Before(earliest) {
			return fmt.Errorf("%w: allowed after %s", domain.ErrCancelTooEarly,
				earliest.Format(time.RFC3339))
		}

		if err := s.gateway.CancelActivation(ctx, activationID); err != nil {
			return fmt.Errorf("provider cancel: %w", err)
		}

		refund = s.refundAmount(p)
		if err := p.Transition(domain.PurchaseCancelled); err != nil {
			return s.reconciliationFailure(logger, activationID, err)
		}
		if err := purchases.Update(ctx, p); err != nil {
			return s.reconciliationFailure(logger, activationID, err)
		}

		acct, err := accounts.GetForUpdate(ctx, userID, refund.Currency())
		if err != nil {
			return s.reconciliationFailure(logger, activationID, err)
		}
		balanceBefore := acct.Balance
		acct, err = accounts.CreditRefund(ctx, userID, refund)
		if err != nil {
			return s.reconciliationFailure(logger, activationID, err)
		}
		record := &domain.TransactionRecord{
			ID:            uuid.New(),
			UserID:        userID,
			Type:          domain.TxRefund,
			Amount:        refund,
			BalanceBefore: balanceBefore,
			BalanceAfter:  acct.Balance,
			Reference:     activationID,
			Description:   fmt.Sprintf("refund for cancelled number %s", p.PhoneNumber),
			Status:        domain.TxCompleted,
			CreatedAt:     now,
		}
		if err := transactions.Create(ctx, record); err != nil {
			return s.reconciliationFailure(logger, activationID, err)
		}

		cancelledEvent = &events.PurchaseCancelled{
			UserID:       userID,
			ActivationID: activationID,
			Refund:       refund,
			NewBalance:   acct.Balance,
		}
		return nil
	})
	if err != nil {
		return money.Money{}, err
	}

	s.emit(ctx, *cancelledEvent)
	logger.Info("purchase cancelled", "refund", refund.Amount())
	return refund, nil
}

// reconciliationFailure marks a flow where the provider state already changed
// but the ledger write failed; the transaction rolls back and the error tells
// operators the two sides disagree.
func (s *Service) reconciliationFailure(logger *slog.Logger, activationID string, cause error) error {
	logger.Error("provider mutated but ledger update failed, manual reconciliation required",
		"activation_id", activationID, "error", cause)
	return fmt.Errorf("%w: %w", domain.ErrReconciliationRequired, cause)
}

func (s *Service) refundAmount(p *domain.NumberPurchase) money.Money {
	if s.cancelCfg.RefundPolicy == config.RefundPolicyDecayed {
		return p.Price.MulFloat(s.cancelCfg.RefundFraction)
	}
	return p.Price
}

// Complete marks a received purchase as used and acknowledges it provider-side.
// No money moves.
func (s *Service) Complete(ctx context.Context, userID uuid.UUID, activationID string) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		purchases, err := repository.Repo[repository.PurchaseRepository](uow)
		if err != nil {
			return err
		}
		p, err := purchases.GetForUser(ctx, userID, activationID)
		if err != nil {
			return err
		}
		if err := p.Transition(domain.PurchaseUsed); err != nil {
			return err
		}
		if err := s.gateway.CompleteActivation(ctx, activationID); err != nil {
			return fmt.Errorf("provider complete: %w", err)
		}
		return purchases.Update(ctx, p)
	})
}

// PollCode asks the provider for the activation's SMS state and records a
// received code. Returns the refreshed purchase.
func (s *Service) PollCode(ctx context.Context, userID uuid.UUID, activationID string) (p *domain.NumberPurchase, err error) {
	var codeEvent *events.CodeReceived
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		purchases, err := repository.Repo[repository.PurchaseRepository](uow)
		if err != nil {
			return err
		}
		p, err = purchases.GetForUser(ctx, userID, activationID)
		if err != nil {
			return err
		}
		if p.Status != domain.PurchaseWaiting {
			return nil
		}

		act, err := s.gateway.PollActivation(ctx, activationID)
		if err != nil {
			return fmt.Errorf("poll activation: %w", err)
		}
		switch act.State {
		case sms.StateCodeReceived:
			if err := p.Transition(domain.PurchaseReceived); err != nil {
				return err
			}
			p.SMSCode = act.Code
			p.SMSText = act.Text
			if err := purchases.Update(ctx, p); err != nil {
				return err
			}
			codeEvent = &events.CodeReceived{
				UserID:       userID,
				ActivationID: activationID,
				Code:         act.Code,
			}
		case sms.StateCancelled:
			if err := p.Transition(domain.PurchaseCancelled); err != nil {
				return err
			}
			if err := purchases.Update(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if codeEvent != nil {
		s.emit(ctx, *codeEvent)
	}
	return p, nil
}

// List returns the user's purchases, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) (out []*domain.NumberPurchase, err error) {
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		purchases, err := repository.Repo[repository.PurchaseRepository](uow)
		if err != nil {
			return err
		}
		out, err = purchases.ListByUser(ctx, userID, limit)
		return err
	})
	return out, err
}

// ExpireSweep marks overdue waiting purchases as expired. It is invoked
// periodically by the background job runner; each sweep handles at most
// batchSize rows so a long backlog never holds one transaction open.
func (s *Service) ExpireSweep(ctx context.Context, batchSize int) (int, error) {
	expired := 0
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		purchases, err := repository.Repo[repository.PurchaseRepository](uow)
		if err != nil {
			return err
		}
		overdue, err := purchases.ListExpired(ctx, time.Now().UTC(), batchSize)
		if err != nil {
			return err
		}
		for _, p := range overdue {
			if err := p.Transition(domain.PurchaseExpired); err != nil {
				if errors.Is(err, domain.ErrInvalidTransition) {
					continue
				}
				return err
			}
			if err := purchases.Update(ctx, p); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.logger.Info("expired overdue purchases", "count", expired)
	}
	return expired, nil
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if err := s.bus.Emit(ctx, event); err != nil {
		s.logger.Warn("event emit failed", "type", event.Type(), "error", err)
	}
}
