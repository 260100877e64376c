// Package webhooklog implements the inbound-notification audit repository.
package webhooklog

import (
	"context"
	"time"

	"github.com/google/uuid"
	model "github.com/numgate/numgate/infra/repository/model"
	"github.com/numgate/numgate/pkg/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// New creates a webhook-log repository using the provided *gorm.DB.
func New(db *gorm.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, entry *domain.WebhookLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	row := mapDomainToModel(entry)
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) Update(ctx context.Context, entry *domain.WebhookLogEntry) error {
	return r.db.WithContext(ctx).Model(&model.WebhookLog{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"event_type":      entry.EventType,
			"reference":       entry.Reference,
			"signature_valid": entry.SignatureValid,
			"processed":       entry.Processed,
			"processing_err":  entry.ProcessingErr,
			"latency_ms":      entry.LatencyMS,
		}).Error
}

func mapDomainToModel(entry *domain.WebhookLogEntry) *model.WebhookLog {
	return &model.WebhookLog{
		ID:             entry.ID,
		EventType:      entry.EventType,
		Reference:      entry.Reference,
		Payload:        entry.Payload,
		SignatureValid: entry.SignatureValid,
		IdempotencyKey: entry.IdempotencyKey,
		Processed:      entry.Processed,
		ProcessingErr:  entry.ProcessingErr,
		LatencyMS:      entry.LatencyMS,
		ReceivedAt:     entry.ReceivedAt,
	}
}
