package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the wind estimator.
type Metrics struct {
	SamplesLoaded    prometheus.Counter
	SamplesMalformed prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Estimation metrics.
	Observations        prometheus.Counter
	WindowsSkipped      prometheus.Counter
	SolvesNonConverged  prometheus.Counter
	SolveDuration       prometheus.Histogram
	SolverIterations    prometheus.Histogram
	WindowSamples       prometheus.Histogram
	RunDuration         prometheus.Histogram
	ObservationsLoaded  prometheus.Counter
	ObservationLoadErrs prometheus.Counter
}

const namespace = "wind_estimator"

// NewMetrics creates and registers all estimator metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := NewUnregisteredMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with no registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return NewUnregisteredMetrics()
}

// NewUnregisteredMetrics creates Metrics that are not attached to any
// registry. Library callers that do not expose metrics use it.
func NewUnregisteredMetrics() *Metrics {
	return &Metrics{
		SamplesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_loaded_total",
			Help:      "Total sensor samples parsed from input.",
		}),
		SamplesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_malformed_total",
			Help:      "Total input rows skipped because they could not be parsed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while an estimation run is in progress, 0 otherwise.",
		}),
		Observations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Total wind observations produced.",
		}),
		WindowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_skipped_total",
			Help:      "Target times skipped because their window held no samples.",
		}),
		SolvesNonConverged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_nonconverged_total",
			Help:      "Window solves that stopped on an iteration or evaluation limit.",
		}),
		SolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Duration of a single window solve.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		SolverIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solver_iterations",
			Help:      "Simplex iterations per window solve.",
			Buckets:   []float64{50, 100, 200, 300, 500, 750, 1000, 2000},
		}),
		WindowSamples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "window_samples",
			Help:      "Number of samples in each solved window.",
			Buckets:   []float64{1, 3, 10, 30, 60, 120, 300, 600},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete load-estimate-store run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ObservationsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_loaded_total",
			Help:      "Total observations written to sinks.",
		}),
		ObservationLoadErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observation_load_errors_total",
			Help:      "Total failed sink writes.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SamplesLoaded,
		m.SamplesMalformed,
		m.PipelineRunning,
		m.Observations,
		m.WindowsSkipped,
		m.SolvesNonConverged,
		m.SolveDuration,
		m.SolverIterations,
		m.WindowSamples,
		m.RunDuration,
		m.ObservationsLoaded,
		m.ObservationLoadErrs,
	}
}
