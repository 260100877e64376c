// Package deposit implements the payment checkout-session repository.
package deposit

import (
	"context"
	"errors"
	"time"

	model "github.com/numgate/numgate/infra/repository/model"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

// New creates a deposit repository using the provided *gorm.DB.
func New(db *gorm.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, d *domain.PaymentDeposit) error {
	row := mapDomainToModel(d)
	return r.db.WithContext(ctx).Create(row).Error
}

// GetByReference locks the deposit row; two concurrent settlements of the
// same reference serialize here, and the loser sees the settled state.
func (r *repository) GetByReference(ctx context.Context, reference string) (*domain.PaymentDeposit, error) {
	var row model.Deposit
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "reference = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDepositNotFound
		}
		return nil, err
	}
	return mapModelToDomain(&row), nil
}

func (r *repository) Update(ctx context.Context, d *domain.PaymentDeposit) error {
	res := r.db.WithContext(ctx).Model(&model.Deposit{}).
		Where("id = ?", d.ID).
		Updates(map[string]any{
			"status":         string(d.Status),
			"provider_tx_id": d.ProviderTxID,
			"paid_at":        d.PaidAt,
			"updated_at":     d.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrDepositNotFound
	}
	return nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.PaymentDeposit, error) {
	var rows []model.Deposit
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", string(domain.DepositPendingUnsettled), now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.PaymentDeposit, 0, len(rows))
	for i := range rows {
		out = append(out, mapModelToDomain(&rows[i]))
	}
	return out, nil
}

func mapDomainToModel(d *domain.PaymentDeposit) *model.Deposit {
	return &model.Deposit{
		ID:                 d.ID,
		UserID:             d.UserID,
		Reference:          d.Reference,
		ProviderTxID:       d.ProviderTxID,
		RequestedAmount:    d.Requested.Amount(),
		RequestedCurrency:  d.Requested.Currency().String(),
		SettlementAmount:   d.Settlement.Amount(),
		SettlementCurrency: d.Settlement.Currency().String(),
		ExchangeRate:       d.ExchangeRate,
		Status:             string(d.Status),
		CheckoutURL:        d.CheckoutURL,
		ExpiresAt:          d.ExpiresAt,
		PaidAt:             d.PaidAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func mapModelToDomain(row *model.Deposit) *domain.PaymentDeposit {
	return &domain.PaymentDeposit{
		ID:           row.ID,
		UserID:       row.UserID,
		Reference:    row.Reference,
		ProviderTxID: row.ProviderTxID,
		Requested:    money.NewFromData(row.RequestedAmount, row.RequestedCurrency),
		Settlement:   money.NewFromData(row.SettlementAmount, row.SettlementCurrency),
		ExchangeRate: row.ExchangeRate,
		Status:       domain.DepositStatus(row.Status),
		CheckoutURL:  row.CheckoutURL,
		ExpiresAt:    row.ExpiresAt,
		PaidAt:       row.PaidAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
