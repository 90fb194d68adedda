package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/httputil"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

type storedResponse struct {
	status      int
	contentType string
	body        []byte
}

type inFlight struct{}

// Idempotency replays the first successful response to a POST carrying an
// Idempotency-Key, so a retried create does not allocate a second code.
type Idempotency struct {
	responses *cache.Cache
}

func NewIdempotency(ttl time.Duration) *Idempotency {
	return &Idempotency{responses: cache.New(ttl, 2*ttl)}
}

func (i *Idempotency) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if c.Request.Method != http.MethodPost || key == "" {
			c.Next()
			return
		}
		cacheKey := c.Request.URL.Path + "|" + key

		if err := i.responses.Add(cacheKey, inFlight{}, cache.DefaultExpiration); err != nil {
			cached, _ := i.responses.Get(cacheKey)
			stored, ok := cached.(storedResponse)
			if !ok {
				c.AbortWithStatusJSON(http.StatusConflict, httputil.Response{
					Error: &httputil.Error{
						Code:    http.StatusConflict,
						Kind:    apperrors.ErrConflict.String(),
						Message: "a request with this idempotency key is in progress",
						TraceID: c.GetString(httputil.ContextRequestID),
					},
				})
				return
			}
			c.Header(HeaderReplayed, "true")
			c.Data(stored.status, stored.contentType, stored.body)
			c.Abort()
			return
		}

		w := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w
		c.Next()

		// errors are rendered later by ErrorHandler, so the status is not final yet
		status := w.Status()
		if len(c.Errors) > 0 || status < 200 || status >= 300 {
			i.responses.Delete(cacheKey)
			return
		}
		i.responses.Set(cacheKey, storedResponse{
			status:      status,
			contentType: w.Header().Get("Content-Type"),
			body:        w.body.Bytes(),
		}, cache.DefaultExpiration)
	}
}
