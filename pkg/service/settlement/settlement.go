// Package settlement turns payment-provider notifications into ledger
// credits. The discipline is log-first, verify-signature, settle-exactly-once:
// every inbound notification is persisted before any processing, signatures
// are checked over the raw bytes, and a reference can only ever move a
// balance one time. The manual verification path converges on the same
// settle routine, so a replayed webhook and an operator re-check cannot
// disagree.
package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/numgate/numgate/infra/provider/paygate"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/domain/events"
	"github.com/numgate/numgate/pkg/eventbus"
	"github.com/numgate/numgate/pkg/provider/payment"
	"github.com/numgate/numgate/pkg/repository"
)

// Outcome reports what a notification did to the ledger.
type Outcome string

const (
	// OutcomeSettled means the deposit was credited by this notification.
	OutcomeSettled Outcome = "settled"
	// OutcomeAlreadyProcessed means the reference had settled before; no-op.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeFailed means the deposit was marked FAILED; no balance touched.
	OutcomeFailed Outcome = "failed"
	// OutcomeRejected means the notification was logged but not trusted.
	OutcomeRejected Outcome = "rejected"
	// OutcomeIgnored means the event type carries no settlement meaning.
	OutcomeIgnored Outcome = "ignored"
)

// ErrAuditLogUnavailable means the notification could not be persisted and
// was therefore not processed; the delivery must not be acknowledged.
var ErrAuditLogUnavailable = errors.New("webhook audit log unavailable")

// Service processes payment webhooks and manual verifications.
type Service struct {
	verifier payment.SignatureVerifier
	psp      payment.Provider
	uow      repository.UnitOfWork
	bus      eventbus.Bus
	logger   *slog.Logger
}

// New creates a settlement service.
func New(
	verifier payment.SignatureVerifier,
	psp payment.Provider,
	uow repository.UnitOfWork,
	bus eventbus.Bus,
	logger *slog.Logger,
) *Service {
	return &Service{
		verifier: verifier,
		psp:      psp,
		uow:      uow,
		bus:      bus,
		logger:   logger.With("component", "settlement"),
	}
}

// Receive handles one inbound webhook delivery. The raw body is logged
// before anything else; the caller should acknowledge the delivery once
// Receive returns without a transport-level error, regardless of outcome.
func (s *Service) Receive(ctx context.Context, rawBody []byte, signature string) (Outcome, error) {
	started := time.Now()
	sum := sha256.Sum256(rawBody)
	entry := &domain.WebhookLogEntry{
		ID:             uuid.New(),
		Payload:        rawBody,
		IdempotencyKey: hex.EncodeToString(sum[:]),
		ReceivedAt:     started.UTC(),
	}
	if err := s.logEntry(ctx, entry); err != nil {
		// Without the audit row nothing may be processed.
		return OutcomeRejected, fmt.Errorf("%w: %w", ErrAuditLogUnavailable, err)
	}

	outcome, procErr := s.process(ctx, entry, rawBody, signature)

	entry.Processed = outcome == OutcomeSettled || outcome == OutcomeAlreadyProcessed || outcome == OutcomeFailed
	if procErr != nil {
		entry.ProcessingErr = procErr.Error()
	}
	entry.LatencyMS = time.Since(started).Milliseconds()
	if err := s.updateEntry(ctx, entry); err != nil {
		s.logger.Error("webhook log update failed", "id", entry.ID, "error", err)
	}
	return outcome, procErr
}

func (s *Service) process(ctx context.Context, entry *domain.WebhookLogEntry, rawBody []byte, signature string) (Outcome, error) {
	if !s.verifier.Verify(rawBody, signature) {
		s.logger.Warn("webhook signature rejected", "id", entry.ID)
		return OutcomeRejected, domain.ErrInvalidSignature
	}
	entry.SignatureValid = true

	event, err := paygate.DecodeWebhook(rawBody)
	if err != nil {
		return OutcomeRejected, err
	}
	entry.EventType = event.Event
	entry.Reference = event.Transaction.Reference

	switch event.Event {
	case paygate.EventChargeSuccess:
		return s.settle(ctx, event.Transaction)
	case paygate.EventChargeFailed:
		return s.fail(ctx, event.Transaction)
	default:
		s.logger.Debug("webhook event ignored", "event", event.Event)
		return OutcomeIgnored, nil
	}
}

// Verify re-checks a deposit against the provider's verification endpoint.
// It feeds the authoritative answer through the same settle path the webhook
// uses, so the outcome is idempotent across both. The reference must belong
// to userID; foreign references read as not found.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, reference string) (Outcome, error) {
	if err := s.checkOwnership(ctx, userID, reference); err != nil {
		return OutcomeRejected, err
	}
	tx, err := s.psp.VerifyTransaction(ctx, reference)
	if err != nil {
		return OutcomeRejected, err
	}
	switch tx.Status {
	case payment.TxSuccess:
		return s.settle(ctx, tx)
	case payment.TxFailed, payment.TxAbandoned:
		return s.fail(ctx, tx)
	default:
		return OutcomeIgnored, fmt.Errorf("%w: provider status %q", domain.ErrPaymentNotActivated, tx.Status)
	}
}

func (s *Service) checkOwnership(ctx context.Context, userID uuid.UUID, reference string) error {
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
		return nil
	})
}

// settle credits the deposit exactly once. The deposit row is locked for the
// duration of the transaction, so two concurrent deliveries of the same
// reference serialize and the second one observes PAID_SETTLED.
func (s *Service) settle(ctx context.Context, tx payment.Transaction) (Outcome, error) {
	var settledEvent *events.DepositSettled
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		deposits, err := repository.Repo[repository.DepositRepository](uow)
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

		d, err := deposits.GetByReference(ctx, tx.Reference)
		if err != nil {
			return err
		}
		// A charge whose amount disagrees with the initiated deposit is
		// never credited; the deposit stays pending for reconciliation.
		if !tx.Amount.IsZero() && !tx.Amount.Equals(d.Requested) {
			return fmt.Errorf("%w: provider charged %s, deposit requested %s",
				domain.ErrReconciliationRequired, tx.Amount, d.Requested)
		}
		paidAt := tx.PaidAt
		if paidAt.IsZero() {
			paidAt = time.Now().UTC()
		}
		if err := d.Settle(tx.ProviderTxID, paidAt); err != nil {
			return err
		}
		if err := deposits.Update(ctx, d); err != nil {
			return err
		}

		acct, err := accounts.GetForUpdate(ctx, d.UserID, d.Settlement.Currency())
		if err != nil {
			return err
		}
		balanceBefore := acct.Balance
		acct, err = accounts.CreditDeposit(ctx, d.UserID, d.Settlement)
		if err != nil {
			return err
		}
		record := &domain.TransactionRecord{
			ID:            uuid.New(),
			UserID:        d.UserID,
			Type:          domain.TxDeposit,
			Amount:        d.Settlement,
			BalanceBefore: balanceBefore,
			BalanceAfter:  acct.Balance,
			Reference:     d.Reference,
			Description:   fmt.Sprintf("deposit via %s", tx.Channel),
			Status:        domain.TxCompleted,
			CreatedAt:     time.Now().UTC(),
		}
		if err := transactions.Create(ctx, record); err != nil {
			return err
		}

		settledEvent = &events.DepositSettled{
			UserID:     d.UserID,
			Reference:  d.Reference,
			Credited:   d.Settlement,
			NewBalance: acct.Balance,
		}
		return nil
	})
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		// A success for the caller; the money moved on an earlier delivery.
		s.logger.Info("duplicate settlement ignored", "reference", tx.Reference)
		return OutcomeAlreadyProcessed, nil
	}
	if err != nil {
		return OutcomeRejected, err
	}

	s.emit(ctx, *settledEvent)
	s.logger.Info("deposit settled",
		"reference", tx.Reference, "credited", settledEvent.Credited.Amount())
	return OutcomeSettled, nil
}

// fail marks the deposit FAILED. No balance is touched.
func (s *Service) fail(ctx context.Context, tx payment.Transaction) (Outcome, error) {
	var failedEvent *events.DepositFailed
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		deposits, err := repository.Repo[repository.DepositRepository](uow)
		if err != nil {
			return err
		}
		d, err := deposits.GetByReference(ctx, tx.Reference)
		if err != nil {
			return err
		}
		if err := d.Fail(tx.ProviderTxID); err != nil {
			return err
		}
		if err := deposits.Update(ctx, d); err != nil {
			return err
		}
		failedEvent = &events.DepositFailed{
			UserID:    d.UserID,
			Reference: d.Reference,
			Reason:    string(tx.Status),
		}
		return nil
	})
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return OutcomeAlreadyProcessed, nil
	}
	if err != nil {
		return OutcomeRejected, err
	}

	s.emit(ctx, *failedEvent)
	s.logger.Info("deposit marked failed", "reference", tx.Reference)
	return OutcomeFailed, nil
}

func (s *Service) logEntry(ctx context.Context, entry *domain.WebhookLogEntry) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		logs, err := repository.Repo[repository.WebhookLogRepository](uow)
		if err != nil {
			return err
		}
		return logs.Create(ctx, entry)
	})
}

func (s *Service) updateEntry(ctx context.Context, entry *domain.WebhookLogEntry) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		logs, err := repository.Repo[repository.WebhookLogRepository](uow)
		if err != nil {
			return err
		}
		return logs.Update(ctx, entry)
	})
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if err := s.bus.Emit(ctx, event); err != nil {
		s.logger.Warn("event emit failed", "type", event.Type(), "error", err)
	}
}
