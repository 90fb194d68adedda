package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jwalitptl/clinic-records/pkg/logger"
)

// Message is one change notification handed to a broker.
type Message struct {
	ID         string            `json:"id"`
	Topic      string            `json:"topic"`
	Key        string            `json:"key"`
	Payload    json.RawMessage   `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// LogBroker writes messages to the log instead of a transport. It backs the
// "log" outbox broker used in development.
type LogBroker struct {
	log *logger.Logger
}

func NewLogBroker(log *logger.Logger) *LogBroker {
	return &LogBroker{log: log}
}

func (b *LogBroker) Publish(_ context.Context, msg Message) error {
	b.log.Info("Event published",
		"id", msg.ID,
		"topic", msg.Topic,
		"key", msg.Key,
		"bytes", len(msg.Payload))
	return nil
}

func (b *LogBroker) Close() error { return nil }
