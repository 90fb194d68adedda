package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	// Constraint names the violated index, column or foreign key when known.
	Constraint string `json:"constraint,omitempty"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code, so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrConflict
	ErrConstraintViolation
	ErrTransactionMisuse
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:            "not_found",
	ErrBadRequest:          "bad_request",
	ErrUnauthorized:        "unauthorized",
	ErrForbidden:           "forbidden",
	ErrInternal:            "internal",
	ErrConflict:            "conflict",
	ErrConstraintViolation: "constraint_violation",
	ErrTransactionMisuse:   "transaction_misuse",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// NewConflict reports a write that targeted a row removed since it was read.
// Callers see it as not-found; IsConflict tells the two apart.
func NewConflict(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: fmt.Sprintf("%s no longer exists", resource),
		Err:     err,
	}
}

func NewConstraintViolation(constraint, message string, err error) *AppError {
	return &AppError{
		Code:       ErrConstraintViolation,
		Message:    message,
		Constraint: constraint,
		Err:        err,
	}
}

func NewTransactionMisuse(message string) *AppError {
	return &AppError{
		Code:    ErrTransactionMisuse,
		Message: message,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// CodeOf returns the code of the outermost AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsNotFound is true for missing rows and for update conflicts.
func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound) || hasCode(err, ErrConflict)
}

func IsConflict(err error) bool {
	return hasCode(err, ErrConflict)
}

func IsConstraintViolation(err error) bool {
	return hasCode(err, ErrConstraintViolation)
}

func IsTransactionMisuse(err error) bool {
	return hasCode(err, ErrTransactionMisuse)
}

// ConstraintOf returns the constraint recorded on the first violation in err's chain.
func ConstraintOf(err error) string {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return ""
		}
		if appErr.Code == ErrConstraintViolation {
			return appErr.Constraint
		}
		err = appErr.Err
	}
	return ""
}
