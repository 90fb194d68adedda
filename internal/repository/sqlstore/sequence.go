package sqlstore

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-records/internal/codegen"
)

const (
	codeSavepoint = "code_alloc"
	// maxCodeAttempts bounds how often an insert is retried with a fresh
	// code after a collision.
	maxCodeAttempts = 10
)

// nextSequence increments and returns the counter for kind. The first use
// seeds it from the table's row count. The row lock taken by the upsert
// serializes allocators until the transaction ends.
func (s *Store) nextSequence(ctx context.Context, tx *sqlx.Tx, kind codegen.Kind) (int64, error) {
	query := s.rebind(`
		INSERT INTO code_sequences (kind, value)
		SELECT CAST(? AS TEXT), COUNT(*) + 1 FROM ` + kind.Table + ` WHERE TRUE
		ON CONFLICT (kind) DO UPDATE SET value = code_sequences.value + 1
		RETURNING value`)

	var n int64
	err := s.observe("sequence", func() error {
		return tx.QueryRowxContext(ctx, query, kind.Name).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s code: %w", kind.Name, err)
	}
	return n, nil
}

// insertWithCode allocates a code into *code and runs insert, retrying with
// the next value when the code is already taken. On failure *code is left
// empty so a later save allocates again.
func (s *Store) insertWithCode(ctx context.Context, tx *sqlx.Tx, kind codegen.Kind, code *string, insert func() (int64, error)) (int64, error) {
	var rows int64
	attempt := 0
	op := func() error {
		attempt++
		n, err := s.nextSequence(ctx, tx, kind)
		if err != nil {
			return backoff.Permanent(err)
		}
		*code = kind.Format(n)

		if err := savepoint(ctx, tx, codeSavepoint); err != nil {
			return backoff.Permanent(err)
		}
		rows, err = insert()
		if err == nil {
			if err := release(ctx, tx, codeSavepoint); err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		if rbErr := rollbackTo(ctx, tx, codeSavepoint); rbErr != nil {
			return backoff.Permanent(rbErr)
		}
		if !isCodeCollision(err, kind.Column) {
			return backoff.Permanent(err)
		}

		s.log.Warn("business code collision, retrying", "kind", kind.Name, "code", *code, "attempt", attempt)
		if s.metrics != nil {
			s.metrics.CodeAllocationRetries.WithLabelValues(kind.Name).Inc()
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxCodeAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		*code = ""
		return 0, err
	}
	return rows, nil
}

// countCode derives the next code from the row count inside tx. Concurrent
// writers can pick the same value; the unique index rejects the later one.
func countCode(ctx context.Context, s *Store, tx *sqlx.Tx, kind codegen.Kind) (string, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + kind.Table + " WHERE " + visible("")
	if err := tx.QueryRowxContext(ctx, query).Scan(&n); err != nil {
		return "", fmt.Errorf("failed to count %s rows: %w", kind.Name, err)
	}
	return kind.Format(n + 1), nil
}
