package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

// constraintError converts a driver constraint failure into a
// ConstraintViolation. Any other error is returned unchanged.
func constraintError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return apperrors.NewConstraintViolation(pqErr.Constraint, "duplicate value violates "+pqErr.Constraint, err)
		case "23503":
			return apperrors.NewConstraintViolation(pqErr.Constraint, "row is still referenced or references a missing row", err)
		case "23502":
			return apperrors.NewConstraintViolation(pqErr.Column, pqErr.Column+" is required", err)
		case "23514":
			return apperrors.NewConstraintViolation(pqErr.Constraint, "check "+pqErr.Constraint+" failed", err)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		msg := liteErr.Error()
		constraint := msg
		if _, after, ok := strings.Cut(msg, "failed: "); ok {
			constraint = strings.TrimSpace(after)
		} else if strings.HasPrefix(msg, "FOREIGN KEY") {
			constraint = "foreign_key"
		}
		return apperrors.NewConstraintViolation(constraint, msg, err)
	}

	return err
}

// isCodeCollision reports whether err is a uniqueness failure on column.
func isCodeCollision(err error, column string) bool {
	if !apperrors.IsConstraintViolation(err) {
		return false
	}
	return strings.Contains(apperrors.ConstraintOf(err), column)
}

func notFound(entity string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFound(entity, nil)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}
