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
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-records/internal/codegen"
	"github.com/jwalitptl/clinic-records/internal/config"
	"github.com/jwalitptl/clinic-records/internal/handler"
	"github.com/jwalitptl/clinic-records/internal/handler/appointment"
	"github.com/jwalitptl/clinic-records/internal/handler/doctor"
	"github.com/jwalitptl/clinic-records/internal/handler/health"
	"github.com/jwalitptl/clinic-records/internal/handler/patient"
	"github.com/jwalitptl/clinic-records/internal/handler/record"
	"github.com/jwalitptl/clinic-records/internal/handler/user"
	"github.com/jwalitptl/clinic-records/internal/repository/sqlstore"
	"github.com/jwalitptl/clinic-records/internal/router"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
	"github.com/jwalitptl/clinic-records/pkg/security"
	"github.com/jwalitptl/clinic-records/pkg/validator"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv("CLINIC_CONFIG_FILE"))
	if err != nil {
		logger.NewLogger(nil).Fatal(err, "failed to load configuration")
	}

	log := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	ctx := context.Background()

	// Initialize database
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

	strategy, err := codegen.ParseStrategy(cfg.Store.CodeStrategy)
	if err != nil {
		log.Fatal(err, "invalid code strategy")
	}

	m := metrics.NewMetrics("clinic", "", prometheus.DefaultRegisterer)

	opts := []sqlstore.Option{
		sqlstore.WithLogger(log),
		sqlstore.WithMetrics(m),
		sqlstore.WithCodeStrategy(strategy),
		sqlstore.WithOutbox(cfg.Store.Outbox),
	}
	if cfg.Store.StrictTransactions {
		opts = append(opts, sqlstore.WithStrictTransactions())
	}
	store := sqlstore.New(db, opts...)

	if err := validator.RegisterWithGin(); err != nil {
		log.Fatal(err, "failed to register validators")
	}
	gin.SetMode(gin.ReleaseMode)

	// Initialize handlers
	units := handler.UnitFactory(store.OpenUnit)
	handlers := []router.Handler{
		patient.NewHandler(units),
		doctor.NewHandler(units),
		appointment.NewHandler(units),
		record.NewHandler(units),
		user.NewHandler(units, security.NewBcryptHasher(0)),
	}

	routerCfg := router.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		IdempotencyTTL: cfg.Idempotency.TTL,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		ServiceName:    cfg.Monitoring.ServiceName,
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerCfg.RateBurst = cfg.RateLimit.Burst
	}
	if cfg.Monitoring.PrometheusEnabled {
		routerCfg.MetricsPath = cfg.Monitoring.MetricsPath
	}

	r := router.NewRouter(log, m, health.NewHandler(store), handlers, routerCfg)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting server", "addr", srv.Addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	log.Info("server exited")
}
