package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is the balance-account row. One per user, keyed by user id.
type Account struct {
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Balance        int64     `gorm:"not null;check:balance >= 0"`
	Currency       string    `gorm:"type:varchar(3);not null"`
	TotalDeposited int64     `gorm:"not null"`
	TotalSpent     int64     `gorm:"not null"`
	LastTxAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is an append-only ledger entry row.
type Transaction struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID `gorm:"type:uuid;index;not null"`
	Type          string    `gorm:"type:varchar(16);not null"`
	Amount        int64     `gorm:"not null"`
	BalanceBefore int64     `gorm:"not null"`
	BalanceAfter  int64     `gorm:"not null"`
	Currency      string    `gorm:"type:varchar(3);not null"`
	Reference     string    `gorm:"type:varchar(128);index"`
	Description   string    `gorm:"type:varchar(255)"`
	Status        string    `gorm:"type:varchar(16);not null"`
	CreatedAt     time.Time
}

// Purchase is a leased-number row.
type Purchase struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"type:uuid;index;not null"`
	ActivationID string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	PhoneNumber  string    `gorm:"type:varchar(32);not null"`
	CountryCode  string    `gorm:"type:varchar(8);not null"`
	ServiceCode  string    `gorm:"type:varchar(16);not null"`
	Price        int64     `gorm:"not null"`
	Currency     string    `gorm:"type:varchar(3);not null"`
	Status       string    `gorm:"type:varchar(16);index;not null"`
	SMSCode      string    `gorm:"type:varchar(32)"`
	SMSText      string    `gorm:"type:text"`
	PurchasedAt  time.Time `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"index;not null"`
	UpdatedAt    time.Time
}

// Deposit is a payment checkout-session row.
type Deposit struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID             uuid.UUID `gorm:"type:uuid;index;not null"`
	Reference          string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	ProviderTxID       string    `gorm:"type:varchar(128)"`
	RequestedAmount    int64     `gorm:"not null"`
	RequestedCurrency  string    `gorm:"type:varchar(3);not null"`
	SettlementAmount   int64     `gorm:"not null"`
	SettlementCurrency string    `gorm:"type:varchar(3);not null"`
	ExchangeRate       float64   `gorm:"not null"`
	Status             string    `gorm:"type:varchar(24);index;not null"`
	CheckoutURL        string    `gorm:"type:varchar(512)"`
	ExpiresAt          time.Time `gorm:"index;not null"`
	PaidAt             *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WebhookLog is the audit row for one inbound payment notification.
type WebhookLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventType      string    `gorm:"type:varchar(64)"`
	Reference      string    `gorm:"type:varchar(64);index"`
	Payload        []byte    `gorm:"type:bytea"`
	SignatureValid bool      `gorm:"not null"`
	IdempotencyKey string    `gorm:"type:varchar(64);index"`
	Processed      bool      `gorm:"not null"`
	ProcessingErr  string    `gorm:"type:varchar(512)"`
	LatencyMS      int64
	ReceivedAt     time.Time `gorm:"not null"`
}

// Migrate creates or updates the ledger schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&Transaction{},
		&Purchase{},
		&Deposit{},
		&WebhookLog{},
	)
}
