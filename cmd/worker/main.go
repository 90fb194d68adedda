package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"

	"github.com/jwalitptl/clinic-records/internal/config"
	"github.com/jwalitptl/clinic-records/internal/handler/health"
	"github.com/jwalitptl/clinic-records/internal/middleware"
	"github.com/jwalitptl/clinic-records/internal/repository/sqlstore"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/messaging"
	"github.com/jwalitptl/clinic-records/pkg/messaging/kafka"
	"github.com/jwalitptl/clinic-records/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
	"github.com/jwalitptl/clinic-records/pkg/worker"
)

func newBroker(ctx context.Context, cfg *config.Config, log *logger.Logger) (messaging.Broker, error) {
	switch cfg.Outbox.Broker {
	case "redis":
		return redis.NewRedisBroker(ctx, redis.Config{
			URL:           cfg.Redis.URL,
			MaxRetries:    cfg.Redis.MaxRetries,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			ChannelPrefix: "clinic.",
		}, log)
	case "kafka":
		return kafka.NewProducer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
	case "log":
		return messaging.NewLogBroker(log), nil
	}
	return nil, fmt.Errorf("unsupported outbox broker %q", cfg.Outbox.Broker)
}

func healthServer(cfg *config.Config, store *sqlstore.Store, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery(log))
	health.NewHandler(store).RegisterRoutes(&engine.RouterGroup)
	if cfg.Monitoring.PrometheusEnabled {
		engine.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Outbox.HealthPort),
		Handler: engine,
	}
}

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CLINIC_CONFIG_FILE"))
	if err != nil {
		logger.NewLogger(nil).Fatal(err, "failed to load configuration")
	}

	log := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	}).With("component", "outbox_relay")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := sqlstore.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := sqlstore.Migrate(ctx, db); err != nil {
			log.Fatal(err, "failed to migrate database")
		}
	}

	m := metrics.NewMetrics("clinic", "outbox", prometheus.DefaultRegisterer)
	store := sqlstore.New(db, sqlstore.WithLogger(log), sqlstore.WithMetrics(m))

	broker, err := newBroker(ctx, cfg, log)
	if err != nil {
		log.Fatal(err, "failed to create broker", "broker", cfg.Outbox.Broker)
	}
	defer broker.Close()

	processor, err := worker.NewOutboxProcessor(
		store.Outbox(),
		broker,
		worker.OutboxProcessorConfig{
			BatchSize:    cfg.Outbox.BatchSize,
			PollInterval: cfg.Outbox.PollInterval,
			MaxRetries:   cfg.Outbox.MaxRetries,
			RetryDelay:   cfg.Outbox.RetryDelay,
			Retention:    cfg.Outbox.Retention,
		},
		log,
		m,
	)
	if err != nil {
		log.Fatal(err, "invalid outbox processor configuration")
	}

	srv := healthServer(cfg, store, log)

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "health check server failed")
			cancel()
		}
	})
	wg.Go(func() {
		processor.Start(ctx)
	})

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "health check server forced to shutdown")
	}
	wg.Wait()
}
