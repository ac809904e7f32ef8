package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BatchesTotal.WithLabelValues(OutcomeSuccess).Inc()
	m.KeyExhaustionsTotal.Inc()
	m.TransportErrorsTotal.Inc()
	m.CacheLookupsTotal.WithLabelValues("hit").Add(3)
	m.RowsDroppedTotal.WithLabelValues("deduplicate").Add(2)
	m.FinalRows.Set(10)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, float64(10), testutil.ToFloat64(m.FinalRows))
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestNewNop(t *testing.T) {
	m := NewNop()
	m.KeyExhaustionsTotal.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.KeyExhaustionsTotal))
}

func TestWriteToTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.BatchesTotal.WithLabelValues(OutcomeFailed).Inc()

	path := filepath.Join(t.TempDir(), "ywh.prom")
	require.NoError(t, prometheus.WriteToTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ywh_fetch_batches_total{outcome="failed"} 1`)
}
