package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-records/internal/repository"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
)

// DateLayout is the format of date-only path and query values.
const DateLayout = "2006-01-02"

// UnitFactory opens a unit of work for one request.
type UnitFactory func(ctx context.Context) (repository.UnitOfWork, error)

// WithUnit runs fn against a fresh unit of work and closes it afterwards.
// Anything fn left uncommitted is rolled back by Close. Errors are attached
// to the context for the error middleware to render.
func WithUnit(c *gin.Context, units UnitFactory, fn func(u repository.UnitOfWork) error) {
	u, err := units(c.Request.Context())
	if err != nil {
		_ = c.Error(apperrors.NewInternal(err))
		return
	}
	defer u.Close()

	if err := fn(u); err != nil {
		_ = c.Error(err)
	}
}

// ParamID parses a numeric path parameter.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewBadRequest("invalid "+name, err)
	}
	return id, nil
}

// QueryID parses an optional numeric query parameter; ok is false when absent.
func QueryID(c *gin.Context, name string) (id int64, ok bool, err error) {
	raw, present := c.GetQuery(name)
	if !present {
		return 0, false, nil
	}
	id, err = strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, apperrors.NewBadRequest("invalid "+name, err)
	}
	return id, true, nil
}

// QueryDate parses an optional YYYY-MM-DD query parameter in UTC.
func QueryDate(c *gin.Context, name string) (t time.Time, ok bool, err error) {
	raw, present := c.GetQuery(name)
	if !present {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, false, apperrors.NewBadRequest(name+" must be formatted as "+DateLayout, err)
	}
	return t, true, nil
}

// Bind decodes the JSON body into obj and runs its binding rules.
func Bind(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return apperrors.NewBadRequest(err.Error(), err)
	}
	return nil
}
