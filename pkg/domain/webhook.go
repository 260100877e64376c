package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookLogEntry is the immutable audit record of one inbound payment
// notification. It is written before processing begins so that a crash
// mid-processing still leaves a trace.
type WebhookLogEntry struct {
	ID             uuid.UUID
	EventType      string
	Reference      string
	Payload        []byte // raw body, exactly as received
	SignatureValid bool
	IdempotencyKey string
	Processed      bool
	ProcessingErr  string
	LatencyMS      int64
	ReceivedAt     time.Time
}
