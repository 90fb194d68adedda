package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicatesFollowWrapping(t *testing.T) {
	notFound := NewNotFound("patient", nil)
	wrapped := fmt.Errorf("failed to get patient: %w", notFound)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.False(t, IsConstraintViolation(wrapped))
	assert.Equal(t, ErrNotFound, CodeOf(wrapped))
}

func TestConflictReportsAsNotFound(t *testing.T) {
	err := fmt.Errorf("failed to flush: %w", NewConflict("doctor", nil))

	assert.True(t, IsNotFound(err))
	assert.True(t, IsConflict(err))
	assert.Equal(t, "doctor no longer exists", stderrors.Unwrap(err).Error())
}

func TestConstraintViolationCarriesConstraint(t *testing.T) {
	cause := stderrors.New("UNIQUE constraint failed: patients.national_id")
	err := fmt.Errorf("failed to insert patient: %w",
		NewConstraintViolation("patients.national_id", "duplicate national id", cause))

	assert.True(t, IsConstraintViolation(err))
	assert.Equal(t, "patients.national_id", ConstraintOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "duplicate national id")
}

func TestIsMatchesByCode(t *testing.T) {
	sentinel := &AppError{Code: ErrTransactionMisuse}
	err := NewTransactionMisuse("transaction already open")

	assert.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, &AppError{Code: ErrNotFound})
	assert.True(t, IsTransactionMisuse(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, ErrInternal, CodeOf(stderrors.New("boom")))
	assert.False(t, IsNotFound(nil))
	assert.Equal(t, "constraint_violation", ErrConstraintViolation.String())
}
