package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-records/pkg/httputil"
)

// Timeout bounds the request context. Handlers pass that context to the
// database, so a slow query is cancelled rather than left running.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, httputil.Response{
				Error: &httputil.Error{
					Code:    http.StatusGatewayTimeout,
					Kind:    "timeout",
					Message: "Request timeout",
					TraceID: c.GetString(httputil.ContextRequestID),
				},
			})
		}
	}
}
