// Package sqlstore implements the clinic repositories and unit of work on
// sqlx. PostgreSQL and SQLite are supported; queries are written with ?
// placeholders and rebound for the open driver.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-records/internal/codegen"
	"github.com/jwalitptl/clinic-records/internal/repository"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

// Store hands out units of work over a shared connection pool.
type Store struct {
	db       *sqlx.DB
	bindType int
	log      *logger.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
	strategy codegen.Strategy
	outbox   bool
	strict   bool
}

type Option func(*Store)

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock replaces the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = now }
}

func WithCodeStrategy(strategy codegen.Strategy) Option {
	return func(s *Store) { s.strategy = strategy }
}

// WithOutbox records an outbox event for every flushed change.
func WithOutbox(enabled bool) Option {
	return func(s *Store) { s.outbox = enabled }
}

// WithStrictTransactions makes Commit and Rollback fail when no
// transaction is open instead of doing nothing.
func WithStrictTransactions() Option {
	return func(s *Store) { s.strict = true }
}

func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:       db,
		bindType: sqlx.BindType(db.DriverName()),
		log:      logger.Nop(),
		clock:    time.Now,
		strategy: codegen.StrategySequence,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UnitOfWork pins a pooled connection for the lifetime of the returned unit.
// Callers must Close it.
func (s *Store) UnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return newUnitOfWork(s, conn), nil
}

// OpenUnit is UnitOfWork behind the repository contract, for callers that
// only depend on internal/repository.
func (s *Store) OpenUnit(ctx context.Context) (repository.UnitOfWork, error) {
	u, err := s.UnitOfWork(ctx)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Outbox returns the repository the relay worker reads from.
func (s *Store) Outbox() repository.OutboxRepository {
	return &outboxRepository{store: s}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

func (s *Store) rebind(query string) string {
	return sqlx.Rebind(s.bindType, query)
}

// observe times a database operation when metrics are enabled.
func (s *Store) observe(operation string, fn func() error) error {
	if s.metrics == nil {
		return fn()
	}
	start := time.Now()
	err := fn()
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.DatabaseOperations.WithLabelValues(operation, status).Inc()
	s.metrics.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return err
}
