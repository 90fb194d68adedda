package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("clinic", "store", reg)

	m.SaveChanges.WithLabelValues("success").Inc()
	m.Transactions.WithLabelValues("committed").Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SaveChanges.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Transactions.WithLabelValues("committed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "clinic_store_save_changes_total")
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	// Two instances with the same namespace must not collide.
	a := New("worker")
	b := New("worker")
	a.OutboxEventsProcessed.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.OutboxEventsProcessed))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.OutboxEventsProcessed))
}
