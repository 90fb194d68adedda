package model

import (
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// OutboxEvent is a change notification written in the same transaction as the change.
type OutboxEvent struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	AggregateType string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID   int64        `db:"aggregate_id" json:"aggregate_id"`
	EventType     string       `db:"event_type" json:"event_type"`
	Payload       []byte       `db:"payload" json:"payload"`
	Status        OutboxStatus `db:"status" json:"status"`
	ErrorMessage  *string      `db:"error_message" json:"error_message,omitempty"`
	RetryCount    int          `db:"retry_count" json:"retry_count"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt   *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
}
