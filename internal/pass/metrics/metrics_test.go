package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementOutcome("notified")
	m.IncrementOutcome("notified")
	m.ObserveDedupVeto("storage")
	m.ObserveBarcodeAttempt("zxing", "miss", time.Millisecond)
	m.IncrementDegradation("identity")
	m.ObserveStageLatency("download", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("notified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DedupVetoes.WithLabelValues("storage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BarcodeAttempts.WithLabelValues("zxing", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Degradations.WithLabelValues("identity")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageLatency))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementOutcome("failed")
		m.ObserveRunLatency(time.Second)
		m.ObserveDedupVeto("message_set")
	})
}
