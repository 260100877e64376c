// Package account implements the balance-account repository on GORM.
// The debit and credit paths are single guarded UPDATE statements so the
// balance check and the mutation cannot be separated by a concurrent writer.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	model "github.com/numgate/numgate/infra/repository/model"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

// New creates an account repository using the provided *gorm.DB.
func New(db *gorm.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, userID uuid.UUID) (*domain.BalanceAccount, error) {
	var acct model.Account
	if err := r.db.WithContext(ctx).First(&acct, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return mapModelToDomain(&acct), nil
}

// GetForUpdate locks the account row for the rest of the transaction. A
// missing account is created with a zero balance first, so the first deposit
// or purchase attempt of a new user takes the same path as every later one.
func (r *repository) GetForUpdate(ctx context.Context, userID uuid.UUID, currency money.Code) (*domain.BalanceAccount, error) {
	var acct model.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&acct, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		acct = model.Account{
			UserID:    userID,
			Currency:  string(currency),
			CreatedAt: time.Now().UTC(),
		}
		if err := r.db.WithContext(ctx).Create(&acct).Error; err != nil {
			return nil, err
		}
		return mapModelToDomain(&acct), nil
	}
	if err != nil {
		return nil, err
	}
	return mapModelToDomain(&acct), nil
}

func (r *repository) DebitIfSufficient(ctx context.Context, userID uuid.UUID, amount money.Money) (*domain.BalanceAccount, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("user_id = ? AND balance >= ?", userID, amount.Amount()).
		Updates(map[string]any{
			"balance":     gorm.Expr("balance - ?", amount.Amount()),
			"total_spent": gorm.Expr("total_spent + ?", amount.Amount()),
			"last_tx_at":  now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a short balance from a missing account.
		if _, err := r.Get(ctx, userID); err != nil {
			return nil, err
		}
		return nil, domain.ErrInsufficientBalance
	}
	return r.Get(ctx, userID)
}

func (r *repository) CreditDeposit(ctx context.Context, userID uuid.UUID, amount money.Money) (*domain.BalanceAccount, error) {
	return r.credit(ctx, userID, amount, map[string]any{
		"balance":         gorm.Expr("balance + ?", amount.Amount()),
		"total_deposited": gorm.Expr("total_deposited + ?", amount.Amount()),
		"last_tx_at":      time.Now().UTC(),
	})
}

func (r *repository) CreditRefund(ctx context.Context, userID uuid.UUID, amount money.Money) (*domain.BalanceAccount, error) {
	return r.credit(ctx, userID, amount, map[string]any{
		"balance":    gorm.Expr("balance + ?", amount.Amount()),
		"last_tx_at": time.Now().UTC(),
	})
}

func (r *repository) credit(ctx context.Context, userID uuid.UUID, amount money.Money, updates map[string]any) (*domain.BalanceAccount, error) {
	res := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return r.Get(ctx, userID)
}

func mapModelToDomain(acct *model.Account) *domain.BalanceAccount {
	return &domain.BalanceAccount{
		UserID:         acct.UserID,
		Balance:        money.NewFromData(acct.Balance, acct.Currency),
		TotalDeposited: money.NewFromData(acct.TotalDeposited, acct.Currency),
		TotalSpent:     money.NewFromData(acct.TotalSpent, acct.Currency),
		LastTxAt:       acct.LastTxAt,
		CreatedAt:      acct.CreatedAt,
	}
}
