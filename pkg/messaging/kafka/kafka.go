package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/jwalitptl/clinic-records/pkg/messaging"
)

// Producer publishes every message to a single topic, keyed by aggregate so
// that changes to one entity keep their order within a partition.
type Producer struct {
	writer *kafka.Writer
}

type Config struct {
	Brokers []string
	Topic   string
}

func NewProducer(config Config) (*Producer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka topic is not configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}, nil
}

func (p *Producer) Topic() string {
	return p.writer.Topic
}

func (p *Producer) Publish(ctx context.Context, msg messaging.Message) error {
	if err := p.writer.WriteMessages(ctx, toKafka(msg)); err != nil {
		return fmt.Errorf("failed to publish message %s: %w", msg.ID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func toKafka(msg messaging.Message) kafka.Message {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(msg.ID)},
		{Key: "event_type", Value: []byte(msg.Topic)},
	}
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Payload,
		Headers: headers,
		Time:    msg.OccurredAt,
	}
}
