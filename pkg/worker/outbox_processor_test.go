package worker

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-records/internal/config"
	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository/sqlstore"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/messaging"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, msg messaging.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockBroker) Close() error { return nil }

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlstore.NewDB(ctx, config.DatabaseConfig{
		Driver: sqlstore.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "clinic.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlstore.Migrate(ctx, db))
	return sqlstore.New(db, sqlstore.WithOutbox(true))
}

func addPatient(t *testing.T, s *sqlstore.Store) *model.Patient {
	t.Helper()
	ctx := context.Background()
	u, err := s.UnitOfWork(ctx)
	require.NoError(t, err)
	defer u.Close()

	p := &model.Patient{FirstName: "Ana", LastName: "Silva", DateOfBirth: time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, u.Patients().Add(p))
	_, err = u.SaveChanges(ctx)
	require.NoError(t, err)
	return p
}

func newProcessor(t *testing.T, s *sqlstore.Store, b messaging.Broker, m *metrics.Metrics) *OutboxProcessor {
	t.Helper()
	p, err := NewOutboxProcessor(s.Outbox(), b, OutboxProcessorConfig{
		BatchSize:    10,
		PollInterval: time.Second,
		MaxRetries:   2,
		RetryDelay:   time.Millisecond,
		Retention:    24 * time.Hour,
	}, logger.Nop(), m)
	require.NoError(t, err)
	return p
}

func TestProcessBatchPublishesAndMarksEvents(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	patient := addPatient(t, s)

	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, mock.MatchedBy(func(msg messaging.Message) bool {
		return msg.Topic == "patient.created" && msg.Key == "patient:"+strconv.FormatInt(patient.ID, 10)
	})).Return(nil).Once()

	m := metrics.New("test")
	p := newProcessor(t, s, broker, m)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	broker.AssertExpectations(t)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsProcessed))

	pending, err := s.Outbox().Pending(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessBatchGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	addPatient(t, s)

	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	m := metrics.New("test")
	p := newProcessor(t, s, broker, m)

	for i := 0; i < 3; i++ {
		n, err := p.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	// two polls with two attempts each, then the event is exhausted
	broker.AssertNumberOfCalls(t, "Publish", 4)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OutboxEventsFailed))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OutboxRetries.WithLabelValues("patient.created")))

	var status string
	var retries int
	require.NoError(t, s.DB().QueryRowxContext(ctx,
		"SELECT status, retry_count FROM outbox_events").Scan(&status, &retries))
	assert.Equal(t, string(model.OutboxStatusFailed), status)
	assert.Equal(t, 2, retries)
}

func TestCleanupRemovesExpiredEvents(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	addPatient(t, s)

	broker := &mockBroker{}
	broker.On("Publish", mock.Anything, mock.Anything).Return(nil)
	p := newProcessor(t, s, broker, metrics.New("test"))

	_, err := p.ProcessBatch(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Cleanup(ctx))
	var count int
	require.NoError(t, s.DB().GetContext(ctx, &count, "SELECT COUNT(*) FROM outbox_events"))
	assert.Equal(t, 1, count, "inside the retention window")

	p.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	require.NoError(t, p.Cleanup(ctx))
	require.NoError(t, s.DB().GetContext(ctx, &count, "SELECT COUNT(*) FROM outbox_events"))
	assert.Zero(t, count)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	_, err := NewOutboxProcessor(nil, nil, OutboxProcessorConfig{}, logger.Nop(), metrics.New("test"))
	assert.Error(t, err)
}

func TestMessage(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	msg := Message(&model.OutboxEvent{
		ID:            id,
		AggregateType: "medical_record",
		AggregateID:   7,
		EventType:     "medical_record.deleted",
		Payload:       []byte(`{}`),
		RetryCount:    1,
		CreatedAt:     at,
	})

	assert.Equal(t, id.String(), msg.ID)
	assert.Equal(t, "medical_record.deleted", msg.Topic)
	assert.Equal(t, "medical_record:7", msg.Key)
	assert.Equal(t, "1", msg.Headers["retry_count"])
	assert.Equal(t, at, msg.OccurredAt)
}
