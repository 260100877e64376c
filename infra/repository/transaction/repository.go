// Package transaction implements the append-only ledger-entry repository.
package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	model "github.com/numgate/numgate/infra/repository/model"
	"github.com/numgate/numgate/pkg/domain"
	"github.com/numgate/numgate/pkg/money"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// New creates a transaction repository using the provided *gorm.DB.
func New(db *gorm.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, record *domain.TransactionRecord) error {
	row := model.Transaction{
		ID:            record.ID,
		UserID:        record.UserID,
		Type:          string(record.Type),
		Amount:        record.Amount.Amount(),
		BalanceBefore: record.BalanceBefore.Amount(),
		BalanceAfter:  record.BalanceAfter.Amount(),
		Currency:      record.Amount.Currency().String(),
		Reference:     record.Reference,
		Description:   record.Description,
		Status:        string(record.Status),
		CreatedAt:     record.CreatedAt,
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
		record.ID = row.ID
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
		record.CreatedAt = row.CreatedAt
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.TransactionRecord, error) {
	var rows []model.Transaction
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*domain.TransactionRecord, 0, len(rows))
	for i := range rows {
		records = append(records, mapModelToDomain(&rows[i]))
	}
	return records, nil
}

func (r *repository) GetByReference(ctx context.Context, reference string) (*domain.TransactionRecord, error) {
	var row model.Transaction
	if err := r.db.WithContext(ctx).First(&row, "reference = ?", reference).Error; err != nil {
		return nil, err
	}
	return mapModelToDomain(&row), nil
}

func mapModelToDomain(row *model.Transaction) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:            row.ID,
		UserID:        row.UserID,
		Type:          domain.TxType(row.Type),
		Amount:        money.NewFromData(row.Amount, row.Currency),
		BalanceBefore: money.NewFromData(row.BalanceBefore, row.Currency),
		BalanceAfter:  money.NewFromData(row.BalanceAfter, row.Currency),
		Reference:     row.Reference,
		Description:   row.Description,
		Status:        domain.TxStatus(row.Status),
		CreatedAt:     row.CreatedAt,
	}
}
