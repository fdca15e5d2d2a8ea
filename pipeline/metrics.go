package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus collectors for engine monitoring.
//
// Exposed series (namespaced "pipeflow_"):
//   - runs_total{outcome}: finished runs by completed/stopped/failed
//   - node_executions_total{node,status}: node terminal transitions
//   - node_duration_ms{node}: node execution latency histogram
//   - inflight_nodes: nodes currently RUNNING
//
// Register the collectors on any prometheus.Registerer and expose it with
// promhttp as usual:
//
//	registry := prometheus.NewRegistry()
//	metrics := pipeline.NewMetrics(registry)
//	engine := pipeline.NewEngine(pipe, st, pipeline.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	runsTotal           *prometheus.CounterVec
	nodeExecutionsTotal *prometheus.CounterVec
	nodeDurationMS      *prometheus.HistogramVec
	inflightNodes       prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeflow",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by outcome.",
		}, []string{"outcome"}),
		nodeExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeflow",
			Name:      "node_executions_total",
			Help:      "Node terminal status transitions.",
		}, []string{"node", "status"}),
		nodeDurationMS: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipeflow",
			Name:      "node_duration_ms",
			Help:      "Node execution duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node"}),
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeflow",
			Name:      "inflight_nodes",
			Help:      "Nodes currently executing.",
		}),
	}
}

func (m *Metrics) nodeStarted() {
	if m == nil {
		return
	}
	m.inflightNodes.Inc()
}

func (m *Metrics) nodeFinished(node string, status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inflightNodes.Dec()
	m.nodeExecutionsTotal.WithLabelValues(node, string(status)).Inc()
	m.nodeDurationMS.WithLabelValues(node).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) runFinished(outcome RunStatus) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(outcome)).Inc()
}
