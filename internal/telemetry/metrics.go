package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus-метрики выполнения workflow.
//
// Nil *Metrics допустим: все методы становятся no-op.
type Metrics struct {
	runsTotal      *prometheus.CounterVec
	runSteps       prometheus.Histogram
	nodeExecutions *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	runsRecovered  prometheus.Counter
}

// NewMetrics регистрирует метрики в reg.
// Для сервисов передаётся prometheus.DefaultRegisterer, для тестов — prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "graphflow_runs_total",
			Help: "Workflow runs by terminal status.",
		}, []string{"status"}),

		runSteps: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "graphflow_run_steps",
			Help:    "Number of executed nodes per run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),

		nodeExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "graphflow_node_executions_total",
			Help: "Node executions by type and outcome.",
		}, []string{"type", "outcome"}),

		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "graphflow_node_duration_seconds",
			Help:    "Node execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		runsRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "graphflow_runs_recovered_total",
			Help: "Runs failed by the orchestrator after their worker was lost.",
		}),
	}
}

// ObserveRun фиксирует завершение run.
func (m *Metrics) ObserveRun(status string, steps int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runSteps.Observe(float64(steps))
}

// ObserveNode фиксирует выполнение узла. outcome — "ok" или "error".
func (m *Metrics) ObserveNode(nodeType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodeExecutions.WithLabelValues(nodeType, outcome).Inc()
	m.nodeDuration.WithLabelValues(nodeType).Observe(d.Seconds())
}

// ObserveRecovered фиксирует run'ы, завершённые оркестратором.
func (m *Metrics) ObserveRecovered(n int) {
	if m == nil {
		return
	}
	m.runsRecovered.Add(float64(n))
}
