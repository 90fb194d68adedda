package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/messaging"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries bounds how many failed polls an event survives.
	MaxRetries int
	// RetryDelay is the first backoff interval for publish attempts within one poll.
	RetryDelay time.Duration
	// Retention is how long processed events are kept; zero keeps them forever.
	Retention time.Duration
}

// OutboxProcessor relays pending outbox events to a broker.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return nil, fmt.Errorf("max retries must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, fmt.Errorf("retry delay must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor",
		"batch_size", p.config.BatchSize,
		"poll_interval", p.config.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
			if err := p.Cleanup(ctx); err != nil {
				p.logger.Error(err, "Failed to clean up processed events")
			}
		}
	}
}

// ProcessBatch publishes one batch of pending events and returns how many
// were delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.Pending(ctx, p.config.BatchSize, p.config.MaxRetries)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("outbox_pending", "error").Inc()
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("outbox_pending", "success").Inc()
	p.metrics.OutboxQueueSize.Set(float64(len(events)))

	delivered := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := Message(event)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.config.RetryDelay
	attempt := 0
	err := backoff.Retry(func() error {
		if attempt > 0 {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		attempt++
		return p.broker.Publish(ctx, msg)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.config.MaxRetries-1)), ctx))

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		if markErr := p.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			p.logger.Error(markErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}
	return nil
}

// Cleanup drops processed events older than the retention window.
func (p *OutboxProcessor) Cleanup(ctx context.Context) error {
	if p.config.Retention <= 0 {
		return nil
	}
	n, err := p.repo.DeleteProcessedBefore(ctx, p.now().Add(-p.config.Retention))
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Debug("Removed processed outbox events", "count", n)
	}
	return nil
}

// Message converts a stored event into its broker form.
func Message(event *model.OutboxEvent) messaging.Message {
	return messaging.Message{
		ID:      event.ID.String(),
		Topic:   event.EventType,
		Key:     event.AggregateType + ":" + strconv.FormatInt(event.AggregateID, 10),
		Payload: event.Payload,
		Headers: map[string]string{
			"aggregate_type": event.AggregateType,
			"retry_count":    strconv.Itoa(event.RetryCount),
		},
		OccurredAt: event.CreatedAt,
	}
}
