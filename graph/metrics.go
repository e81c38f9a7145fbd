package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for graph execution.
//
// Exposed metrics, all namespaced "finflow":
//
//   - runs_started_total (counter): runs begun.
//   - runs_completed_total (counter): runs that reached a terminal route.
//   - runs_failed_total (counter, label code): runs that ended in an error,
//     by engine or node error code.
//   - active_runs (gauge): runs currently executing.
//   - node_duration_ms (histogram, labels node/status): per-node execution
//     time. Buckets span 1ms to 10s, which covers both pure formatting nodes
//     and nodes that wait on language models.
//   - hops_per_run (histogram): how many node invocations a run performed,
//     including error-node diversions.
//
// All methods are safe on a nil receiver, so callers can thread an optional
// *Metrics through without guarding every call site.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	engine, err := graph.New(reducer, emitter, graph.WithMetrics(metrics))
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsFailed    *prometheus.CounterVec
	activeRuns    prometheus.Gauge
	nodeDuration  *prometheus.HistogramVec
	hopsPerRun    prometheus.Histogram

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers the graph execution metrics with the
// given registry. Passing nil registers with the Prometheus default
// registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{enabled: true}

	m.runsStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "finflow",
		Name:      "runs_started_total",
		Help:      "Workflow runs begun",
	})

	m.runsCompleted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "finflow",
		Name:      "runs_completed_total",
		Help:      "Workflow runs that reached a terminal route",
	})

	m.runsFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finflow",
		Name:      "runs_failed_total",
		Help:      "Workflow runs that ended in an error, by error code",
	}, []string{"code"})

	m.activeRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "finflow",
		Name:      "active_runs",
		Help:      "Workflow runs currently executing",
	})

	m.nodeDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "finflow",
		Name:      "node_duration_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"node", "status"}) // status: ok, error

	m.hopsPerRun = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "finflow",
		Name:      "hops_per_run",
		Help:      "Node invocations per run, including error diversions",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
	})

	return m
}

// RunStarted records the start of a run.
func (m *Metrics) RunStarted() {
	if !m.recording() {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RunCompleted records a run that reached a terminal route after the given
// number of hops.
func (m *Metrics) RunCompleted(hops int) {
	if !m.recording() {
		return
	}
	m.runsCompleted.Inc()
	m.hopsPerRun.Observe(float64(hops))
	m.activeRuns.Dec()
}

// RunFailed records a run that ended in an error, labeled by the stable
// error code.
func (m *Metrics) RunFailed(code string, hops int) {
	if !m.recording() {
		return
	}
	m.runsFailed.WithLabelValues(code).Inc()
	m.hopsPerRun.Observe(float64(hops))
	m.activeRuns.Dec()
}

// NodeObserved records one node execution with its status ("ok" or "error")
// and duration.
func (m *Metrics) NodeObserved(node, status string, d time.Duration) {
	if !m.recording() {
		return
	}
	m.nodeDuration.WithLabelValues(node, status).Observe(float64(d.Milliseconds()))
}

// Disable stops recording without unregistering. Useful in tests that share
// a registry.
func (m *Metrics) Disable() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes recording after Disable.
func (m *Metrics) Enable() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

func (m *Metrics) recording() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}
