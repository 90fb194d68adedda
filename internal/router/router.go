package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-records/internal/handler/health"
	"github.com/jwalitptl/clinic-records/internal/middleware"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxBodyBytes   int64
	MetricsPath    string
	// Gatherer serves MetricsPath; nil means the default registry.
	Gatherer prometheus.Gatherer
	// ServiceName enables request tracing under that name.
	ServiceName string
}

type Router struct {
	engine   *gin.Engine
	health   *health.Handler
	handlers []Handler
	config   RouterConfig
}

func NewRouter(
	log *logger.Logger,
	m *metrics.Metrics,
	healthH *health.Handler,
	handlers []Handler,
	config RouterConfig,
) *Router {
	engine := gin.New()

	if config.ServiceName != "" {
		engine.Use(otelgin.Middleware(config.ServiceName))
	}
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.Metrics(m),
		middleware.ErrorHandler(),
	)
	if config.RateLimit > 0 {
		engine.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		}).RateLimit())
	}
	if config.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(config.RequestTimeout))
	}
	if config.MaxBodyBytes > 0 {
		engine.Use(middleware.SizeLimit(config.MaxBodyBytes))
	}

	return &Router{
		engine:   engine,
		health:   healthH,
		handlers: handlers,
		config:   config,
	}
}

func (r *Router) Setup() {
	if r.config.MetricsPath != "" {
		gatherer := r.config.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		r.engine.GET(r.config.MetricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.health.RegisterRoutes(api)

	resources := api.Group("")
	if r.config.IdempotencyTTL > 0 {
		resources.Use(middleware.NewIdempotency(r.config.IdempotencyTTL).Middleware())
	}
	for _, h := range r.handlers {
		h.RegisterRoutes(resources)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
