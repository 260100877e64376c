// Package repotest provides an in-memory UnitOfWork for service tests. It
// honors the repository semantics (atomic debit, lazy account creation,
// locked reads degrade to plain reads) without a database; failure injection
// fields simulate ledger errors at specific steps.
package repotest

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
	"github.com/numgate/numgate/pkg/repository"
)

// MemoryUoW is an in-memory repository.UnitOfWork. Zero value is not usable;
// construct with NewMemoryUoW.
type MemoryUoW struct {
	mu sync.Mutex

	Accounts     map[uuid.UUID]*domain.BalanceAccount
	Purchases    map[string]*domain.NumberPurchase
	Deposits     map[string]*domain.PaymentDeposit
	Transactions []*domain.TransactionRecord
	WebhookLogs  []*domain.WebhookLogEntry

	// Failure injection. When set, the matching operation returns the error.
	DebitErr          error
	CreditErr         error
	TxCreateErr       error
	PurchaseCreateErr error
	PurchaseUpdateErr error
	DepositUpdateErr  error
	WebhookLogErr     error
}

// NewMemoryUoW creates an empty in-memory unit of work.
func NewMemoryUoW() *MemoryUoW {
	return &MemoryUoW{
		Accounts:  make(map[uuid.UUID]*domain.BalanceAccount),
		Purchases: make(map[string]*domain.NumberPurchase),
		Deposits:  make(map[string]*domain.PaymentDeposit),
	}
}

// SeedAccount creates an account with the given balance.
func (m *MemoryUoW) SeedAccount(userID uuid.UUID, balance money.Money) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accounts[userID] = &domain.BalanceAccount{
		UserID:         userID,
		Balance:        balance,
		TotalDeposited: balance,
		TotalSpent:     money.Zero(balance.Currency()),
		CreatedAt:      time.Now().UTC(),
	}
}

// Do implements repository.UnitOfWork. There is no rollback; tests asserting
// on partial state must inject failures before the mutation under test.
func (m *MemoryUoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return fn(m)
}

// GetRepository implements repository.UnitOfWork.
func (m *MemoryUoW) GetRepository(repoType reflect.Type) (any, error) {
	switch repoType {
	case reflect.TypeOf((*repository.AccountRepository)(nil)).Elem():
		return &accountRepo{m}, nil
	case reflect.TypeOf((*repository.TransactionRepository)(nil)).Elem():
		return &transactionRepo{m}, nil
	case reflect.TypeOf((*repository.PurchaseRepository)(nil)).Elem():
		return &purchaseRepo{m}, nil
	case reflect.TypeOf((*repository.DepositRepository)(nil)).Elem():
		return &depositRepo{m}, nil
	case reflect.TypeOf((*repository.WebhookLogRepository)(nil)).Elem():
		return &webhookLogRepo{m}, nil
	}
	return nil, fmt.Errorf("unsupported repository type: %v", repoType)
}

type accountRepo struct{ m *MemoryUoW }

func (r *accountRepo) Get(_ context.Context, userID uuid.UUID) (*domain.BalanceAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	acct, ok := r.m.Accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	copied := *acct
	return &copied, nil
}

func (r *accountRepo) GetForUpdate(_ context.Context, userID uuid.UUID, currency money.Code) (*domain.BalanceAccount, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	acct, ok := r.m.Accounts[userID]
	if !ok {
		acct = &domain.BalanceAccount{
			UserID:         userID,
			Balance:        money.Zero(currency),
			TotalDeposited: money.Zero(currency),
			TotalSpent:     money.Zero(currency),
			CreatedAt:      time.Now().UTC(),
		}
		r.m.Accounts[userID] = acct
	}
	copied := *acct
	return &copied, nil
}

func (r *accountRepo) DebitIfSufficient(_ context.Context, userID uuid.UUID, amount money.Money) (*domain.BalanceAccount, error) {
	if r.m.DebitErr != nil {
		return nil, r.m.DebitErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	acct, ok := r.m.Accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	short, err := acct.Balance.LessThan(amount)
	if err != nil {
		return nil, err
	}
	if short {
		return nil, domain.ErrInsufficientBalance
	}
	acct.Balance, err = acct.Balance.Sub(amount)
	if err != nil {
		return nil, err
	}
	acct.TotalSpent, err = acct.TotalSpent.Add(amount)
	if err != nil {
		return nil, err
	}
	acct.LastTxAt = time.Now().UTC()
	copied := *acct
	return &copied, nil
}

func (r *accountRepo) CreditDeposit(ctx context.Context, userID uuid.UUID, amount money.Money) (*domain.BalanceAccount, error) {
	return r.credit(userID, amount, true)
}

func (r *accountRepo) CreditRefund(ctx context.Context, userID uuid.UUID, amount money.Money) (*domain.BalanceAccount, error) {
	return r.credit(userID, amount, false)
}

func (r *accountRepo) credit(userID uuid.UUID, amount money.Money, deposit bool) (*domain.BalanceAccount, error) {
	if r.m.CreditErr != nil {
		return nil, r.m.CreditErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	acct, ok := r.m.Accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	var err error
	acct.Balance, err = acct.Balance.Add(amount)
	if err != nil {
		return nil, err
	}
	if deposit {
		acct.TotalDeposited, err = acct.TotalDeposited.Add(amount)
		if err != nil {
			return nil, err
		}
	}
	acct.LastTxAt = time.Now().UTC()
	copied := *acct
	return &copied, nil
}

type transactionRepo struct{ m *MemoryUoW }

func (r *transactionRepo) Create(_ context.Context, record *domain.TransactionRecord) error {
	if r.m.TxCreateErr != nil {
		return r.m.TxCreateErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	copied := *record
	r.m.Transactions = append(r.m.Transactions, &copied)
	return nil
}

func (r *transactionRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*domain.TransactionRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.TransactionRecord
	for _, record := range r.m.Transactions {
		if record.UserID == userID {
			copied := *record
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *transactionRepo) GetByReference(_ context.Context, reference string) (*domain.TransactionRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, record := range r.m.Transactions {
		if record.Reference == reference {
			copied := *record
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("transaction %q not found", reference)
}

type purchaseRepo struct{ m *MemoryUoW }

func (r *purchaseRepo) Create(_ context.Context, p *domain.NumberPurchase) error {
	if r.m.PurchaseCreateErr != nil {
		return r.m.PurchaseCreateErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	copied := *p
	r.m.Purchases[p.ActivationID] = &copied
	return nil
}

func (r *purchaseRepo) GetByActivationID(_ context.Context, activationID string) (*domain.NumberPurchase, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.Purchases[activationID]
	if !ok {
		return nil, domain.ErrPurchaseNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *purchaseRepo) GetForUser(ctx context.Context, userID uuid.UUID, activationID string) (*domain.NumberPurchase, error) {
	p, err := r.GetByActivationID(ctx, activationID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrPurchaseNotFound
	}
	return p, nil
}

func (r *purchaseRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*domain.NumberPurchase, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.NumberPurchase
	for _, p := range r.m.Purchases {
		if p.UserID == userID {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *purchaseRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*domain.NumberPurchase, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.NumberPurchase
	for _, p := range r.m.Purchases {
		if p.Status == domain.PurchaseWaiting && now.After(p.ExpiresAt) {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *purchaseRepo) Update(_ context.Context, p *domain.NumberPurchase) error {
	if r.m.PurchaseUpdateErr != nil {
		return r.m.PurchaseUpdateErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.Purchases[p.ActivationID]; !ok {
		return domain.ErrPurchaseNotFound
	}
	copied := *p
	r.m.Purchases[p.ActivationID] = &copied
	return nil
}

type depositRepo struct{ m *MemoryUoW }

func (r *depositRepo) Create(_ context.Context, d *domain.PaymentDeposit) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	copied := *d
	r.m.Deposits[d.Reference] = &copied
	return nil
}

func (r *depositRepo) GetByReference(_ context.Context, reference string) (*domain.PaymentDeposit, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	d, ok := r.m.Deposits[reference]
	if !ok {
		return nil, domain.ErrDepositNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *depositRepo) Update(_ context.Context, d *domain.PaymentDeposit) error {
	if r.m.DepositUpdateErr != nil {
		return r.m.DepositUpdateErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.Deposits[d.Reference]; !ok {
		return domain.ErrDepositNotFound
	}
	copied := *d
	r.m.Deposits[d.Reference] = &copied
	return nil
}

func (r *depositRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*domain.PaymentDeposit, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.PaymentDeposit
	for _, d := range r.m.Deposits {
		if d.Status == domain.DepositPendingUnsettled && now.After(d.ExpiresAt) {
			copied := *d
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type webhookLogRepo struct{ m *MemoryUoW }

func (r *webhookLogRepo) Create(_ context.Context, entry *domain.WebhookLogEntry) error {
	if r.m.WebhookLogErr != nil {
		return r.m.WebhookLogErr
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	copied := *entry
	r.m.WebhookLogs = append(r.m.WebhookLogs, &copied)
	return nil
}

func (r *webhookLogRepo) Update(_ context.Context, entry *domain.WebhookLogEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i, existing := range r.m.WebhookLogs {
		if existing.ID == entry.ID {
			copied := *entry
			r.m.WebhookLogs[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("webhook log %s not found", entry.ID)
}

var _ repository.UnitOfWork = (*MemoryUoW)(nil)
