package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/httputil"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRequestIDIsEchoedOrAssigned(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(httputil.ContextRequestID)) })

	w := perform(r, http.MethodGet, "/", "", map[string]string{HeaderXRequestID: "abc"})
	assert.Equal(t, "abc", w.Header().Get(HeaderXRequestID))
	assert.Equal(t, "abc", w.Body.String())

	w = perform(r, http.MethodGet, "/", "", nil)
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
}

func TestErrorHandlerMapsAppErrors(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger(logger.Nop()), ErrorHandler())
	r.GET("/missing", func(c *gin.Context) { _ = c.Error(apperrors.NewNotFound("patient", nil)) })
	r.GET("/dup", func(c *gin.Context) {
		_ = c.Error(apperrors.NewConstraintViolation("patients.national_id", "duplicate national id", nil))
	})

	w := perform(r, http.MethodGet, "/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "patient not found", decode(t, w).Error.Message)

	w = perform(r, http.MethodGet, "/dup", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "patients.national_id", decode(t, w).Error.Constraint)
}

func TestRecoveryReturns500(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(logger.Nop()))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := perform(r, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w).Error.Message)
}

func TestRateLimitIsPerClient(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1}).RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRequest(http.MethodGet, "/", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	second := httptest.NewRequest(http.MethodGet, "/", nil)
	second.RemoteAddr = "10.0.0.2:1234"

	codes := func(req *http.Request) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, codes(first))
	assert.Equal(t, http.StatusTooManyRequests, codes(first))
	assert.Equal(t, http.StatusOK, codes(second))
}

func TestIdempotencyReplaysSuccessfulPost(t *testing.T) {
	var calls atomic.Int32
	r := gin.New()
	r.Use(NewIdempotency(time.Minute).Middleware())
	r.POST("/patients", func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})
	r.POST("/fail", func(c *gin.Context) {
		calls.Add(1)
		c.Status(http.StatusBadRequest)
	})

	headers := map[string]string{HeaderIdempotencyKey: "k1"}
	w1 := perform(r, http.MethodPost, "/patients", "{}", headers)
	w2 := perform(r, http.MethodPost, "/patients", "{}", headers)
	assert.Equal(t, http.StatusCreated, w2.Code)
	assert.Equal(t, w1.Body.String(), w2.Body.String())
	assert.Equal(t, "true", w2.Header().Get(HeaderReplayed))
	assert.Equal(t, int32(1), calls.Load())

	perform(r, http.MethodPost, "/patients", "{}", nil)
	assert.Equal(t, int32(2), calls.Load(), "requests without a key always run")

	perform(r, http.MethodPost, "/fail", "{}", headers)
	perform(r, http.MethodPost, "/fail", "{}", headers)
	assert.Equal(t, int32(4), calls.Load(), "failures are not cached")
}

func TestTimeoutWritesGatewayTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(10 * time.Millisecond))
	r.GET("/", func(c *gin.Context) { <-c.Request.Context().Done() })

	w := perform(r, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusRequestEntityTooLarge, perform(r, http.MethodPost, "/", "0123456789", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/", "012", nil).Code)
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	m := metrics.New("test")
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/patients/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/patients/1", "", nil)
	perform(r, http.MethodGet, "/patients/2", "", nil)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/patients/:id", "200")))
}
