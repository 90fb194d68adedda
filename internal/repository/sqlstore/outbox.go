package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

// EventType names the outbox event for an entity kind and action, for
// example "medical_record.created".
func EventType(entity, action string) string {
	return strings.ReplaceAll(entity, " ", "_") + "." + action
}

// writeEvent records an entity change in the outbox inside the flushing
// transaction.
func (s *Store) writeEvent(ctx context.Context, tx *sqlx.Tx, entity, action string, id int64, body any, now time.Time) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", entity, err)
	}

	evt := &model.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: strings.ReplaceAll(entity, " ", "_"),
		AggregateID:   id,
		EventType:     EventType(entity, action),
		Payload:       payload,
		Status:        model.OutboxStatusPending,
		CreatedAt:     now,
	}

	query := s.rebind(`
		INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?)`)
	err = s.observe("outbox_insert", func() error {
		_, err := tx.ExecContext(ctx, query,
			evt.ID.String(),
			evt.AggregateType,
			evt.AggregateID,
			evt.EventType,
			string(evt.Payload),
			string(evt.Status),
			evt.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// outboxRepository is used by the relay outside any unit of work.
type outboxRepository struct {
	store *Store
}

var _ repository.OutboxRepository = (*outboxRepository)(nil)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, status,
	error_message, retry_count, created_at, processed_at`

// Pending returns the oldest events still waiting for delivery, including
// failed ones that have retries left.
func (r *outboxRepository) Pending(ctx context.Context, limit, maxRetries int) ([]*model.OutboxEvent, error) {
	query := r.store.rebind(`
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = ? OR (status = ? AND retry_count < ?)
		ORDER BY created_at ASC
		LIMIT ?`)

	events := []*model.OutboxEvent{}
	err := r.store.observe("outbox_pending", func() error {
		return r.store.db.SelectContext(ctx, &events, query,
			string(model.OutboxStatusPending), string(model.OutboxStatusFailed), maxRetries, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := r.store.rebind(`
		UPDATE outbox_events
		SET status = ?, error_message = NULL, processed_at = ?
		WHERE id = ?`)
	return r.mark(ctx, id, query, string(model.OutboxStatusProcessed), r.store.now(), id.String())
}

// MarkFailed records the failure and counts it against the event's retries.
func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := r.store.rebind(`
		UPDATE outbox_events
		SET status = ?, error_message = ?, retry_count = retry_count + 1
		WHERE id = ?`)
	return r.mark(ctx, id, query, string(model.OutboxStatusFailed), reason, id.String())
}

func (r *outboxRepository) mark(ctx context.Context, id uuid.UUID, query string, args ...interface{}) error {
	res, err := r.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update outbox event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update outbox event %s: %w", id, err)
	}
	if n == 0 {
		return apperrors.NewNotFound("outbox event "+id.String(), nil)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := r.store.rebind(`DELETE FROM outbox_events WHERE status = ? AND processed_at < ?`)
	res, err := r.store.db.ExecContext(ctx, query, string(model.OutboxStatusProcessed), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	return res.RowsAffected()
}
