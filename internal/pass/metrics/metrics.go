package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the pass pipeline.
type Metrics struct {
	// Terminal run outcomes by state
	Outcomes *prometheus.CounterVec

	// Per-stage latency
	StageLatency *prometheus.HistogramVec

	// Full run latency
	RunLatency prometheus.Histogram

	// Barcode strategy attempts by strategy and outcome
	BarcodeAttempts *prometheus.CounterVec

	// Duplicate vetoes by tier
	DedupVetoes *prometheus.CounterVec

	// Failures absorbed without aborting the run
	Degradations *prometheus.CounterVec
}

// New registers the pipeline metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletpass_pipeline_outcomes_total",
			Help: "Pipeline runs by terminal state",
		}, []string{"state"}), // state: "notified", "skipped", "no_face", "failed"

		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "walletpass_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"stage"}),

		RunLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletpass_pipeline_run_duration_seconds",
			Help:    "Duration of a full pipeline run",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),

		BarcodeAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletpass_barcode_attempts_total",
			Help: "Barcode decode attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),

		DedupVetoes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletpass_dedup_vetoes_total",
			Help: "Duplicate images rejected by tier",
		}, []string{"tier"}),

		Degradations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletpass_pipeline_degradations_total",
			Help: "Non-fatal stage failures absorbed by the pipeline",
		}, []string{"stage"}),
	}
}

func (m *Metrics) IncrementOutcome(state string) {
	if m != nil {
		m.Outcomes.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) ObserveStageLatency(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveRunLatency(d time.Duration) {
	if m != nil {
		m.RunLatency.Observe(d.Seconds())
	}
}

// ObserveBarcodeAttempt satisfies barcode.Observer.
func (m *Metrics) ObserveBarcodeAttempt(strategy, outcome string, _ time.Duration) {
	if m != nil {
		m.BarcodeAttempts.WithLabelValues(strategy, outcome).Inc()
	}
}

// ObserveDedupVeto satisfies idempotency.VetoObserver.
func (m *Metrics) ObserveDedupVeto(tier string) {
	if m != nil {
		m.DedupVetoes.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) IncrementDegradation(stage string) {
	if m != nil {
		m.Degradations.WithLabelValues(stage).Inc()
	}
}
