package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

func TestCollectorCountsByLabel(t *testing.T) {
	t.Parallel()

	c := New("")
	ctx := context.Background()

	c.IncCounter(ctx, ports.MetricExecutionsTotal, map[string]string{"status": "success"})
	c.IncCounter(ctx, ports.MetricExecutionsTotal, map[string]string{"status": "success"})
	c.IncCounter(ctx, ports.MetricExecutionsTotal, map[string]string{"status": "failure"})

	vec := c.counters[ports.MetricExecutionsTotal]
	assert.Equal(t, float64(2), testutil.ToFloat64(vec.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(vec.WithLabelValues("failure")))
}

func TestCollectorGaugeAndHistogram(t *testing.T) {
	t.Parallel()

	c := New("test")
	ctx := context.Background()

	c.SetGauge(ctx, ports.MetricActiveExecutions, 3, nil)
	c.ObserveHistogram(ctx, ports.MetricExecutionDuration, 1.5, map[string]string{"diagnostic": "a/b"})

	assert.Equal(t, float64(3), testutil.ToFloat64(c.gauges[ports.MetricActiveExecutions].WithLabelValues()))
	count, err := testutil.GatherAndCount(c.Registry(), "test_"+ports.MetricExecutionDuration)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollectorWritesTextfile(t *testing.T) {
	t.Parallel()

	c := New("ref")
	c.IncCounter(context.Background(), ports.MetricCandidatesTotal, map[string]string{"decision": "run"})

	path := filepath.Join(t.TempDir(), "ref.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ref_solver_candidates_total{decision="run"} 1`)
}
