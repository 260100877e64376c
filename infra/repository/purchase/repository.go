// Package purchase implements the leased-number repository.
package purchase

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

// New creates a purchase repository using the provided *gorm.DB.
func New(db *gorm.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, p *domain.NumberPurchase) error {
	row := mapDomainToModel(p)
	return r.db.WithContext(ctx).Create(row).Error
}

// GetByActivationID locks the purchase row so concurrent poll, cancel and
// expiry sweeps over the same activation serialize inside their transactions.
func (r *repository) GetByActivationID(ctx context.Context, activationID string) (*domain.NumberPurchase, error) {
	var row model.Purchase
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "activation_id = ?", activationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPurchaseNotFound
		}
		return nil, err
	}
	return mapModelToDomain(&row), nil
}

func (r *repository) GetForUser(ctx context.Context, userID uuid.UUID, activationID string) (*domain.NumberPurchase, error) {
	p, err := r.GetByActivationID(ctx, activationID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrPurchaseNotFound
	}
	return p, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.NumberPurchase, error) {
	var rows []model.Purchase
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchased_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.NumberPurchase, 0, len(rows))
	for i := range rows {
		out = append(out, mapModelToDomain(&rows[i]))
	}
	return out, nil
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.NumberPurchase, error) {
	var rows []model.Purchase
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", string(domain.PurchaseWaiting), now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.NumberPurchase, 0, len(rows))
	for i := range rows {
		out = append(out, mapModelToDomain(&rows[i]))
	}
	return out, nil
}

func (r *repository) Update(ctx context.Context, p *domain.NumberPurchase) error {
	res := r.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"status":     string(p.Status),
			"sms_code":   p.SMSCode,
			"sms_text":   p.SMSText,
			"updated_at": p.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrPurchaseNotFound
	}
	return nil
}

func mapDomainToModel(p *domain.NumberPurchase) *model.Purchase {
	return &model.Purchase{
		ID:           p.ID,
		UserID:       p.UserID,
		ActivationID: p.ActivationID,
		PhoneNumber:  p.PhoneNumber,
		CountryCode:  p.CountryCode,
		ServiceCode:  p.ServiceCode,
		Price:        p.Price.Amount(),
		Currency:     p.Price.Currency().String(),
		Status:       string(p.Status),
		SMSCode:      p.SMSCode,
		SMSText:      p.SMSText,
		PurchasedAt:  p.PurchasedAt,
		ExpiresAt:    p.ExpiresAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func mapModelToDomain(row *model.Purchase) *domain.NumberPurchase {
	return &domain.NumberPurchase{
		ID:           row.ID,
		UserID:       row.UserID,
		ActivationID: row.ActivationID,
		PhoneNumber:  row.PhoneNumber,
		CountryCode:  row.CountryCode,
		ServiceCode:  row.ServiceCode,
		Price:        money.NewFromData(row.Price, row.Currency),
		Status:       domain.PurchaseStatus(row.Status),
		SMSCode:      row.SMSCode,
		SMSText:      row.SMSText,
		PurchasedAt:  row.PurchasedAt,
		ExpiresAt:    row.ExpiresAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
