package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

// ContextRequestID is the gin context key holding the request id.
const ContextRequestID = "request_id"

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code       int    `json:"code"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Constraint string `json:"constraint,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

// StatusCode maps an error to the HTTP status it is reported with. Conflict
// means the row vanished between load and save, so it reads as not found.
func StatusCode(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound, apperrors.ErrConflict:
		return http.StatusNotFound
	case apperrors.ErrBadRequest:
		return http.StatusBadRequest
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return http.StatusForbidden
	case apperrors.ErrConstraintViolation:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError writes err as an error envelope. Internal details are
// never echoed to the client.
func RespondWithError(c *gin.Context, err error) {
	status := StatusCode(err)
	body := &Error{
		Code:    status,
		Kind:    apperrors.CodeOf(err).String(),
		Message: "Internal server error",
		TraceID: c.GetString(ContextRequestID),
	}

	var appErr *apperrors.AppError
	if status < http.StatusInternalServerError && errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Constraint = appErr.Constraint
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   body,
	})
}
