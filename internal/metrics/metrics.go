// Package metrics exports incident worker activity as Prometheus metrics.
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Meta-project2/RAG-Complaint-2nd/internal/pipeline"
)

// Namespace prefixes every metric name.
const Namespace = "incidentd"

// Metrics holds the worker's collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	passes      *prometheus.CounterVec
	fetched     prometheus.Counter
	merged      prometheus.Counter
	created     *prometheus.CounterVec
	rematched   prometheus.Counter
	discarded   prometheus.Counter
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    prometheus.Histogram
	silhouette  prometheus.Gauge
}

// New creates and registers the worker metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "passes_total",
			Help:      "Completed incident passes by result.",
		}, []string{"result"}),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "complaints_fetched_total",
			Help:      "Unassigned complaints picked up by passes.",
		}),
		merged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "complaints_merged_total",
			Help:      "Complaints merged into existing incidents.",
		}),
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "incidents_created_total",
			Help:      "Incidents created by kind.",
		}, []string{"kind"}),
		rematched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "complaints_rematched_total",
			Help:      "Noise complaints merged into incidents created in the same pass.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "complaints_discarded_total",
			Help:      "Noise complaints left unassigned.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "status_transitions_total",
			Help:      "Incident status transitions by target status.",
		}, []string{"to"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unit_failures_total",
			Help:      "Complaints whose merge or cluster write failed, by stage.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "pass_duration_seconds",
			Help:      "Wall time of incident passes.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		silhouette: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cluster_silhouette",
			Help:      "Mean silhouette score of the last pass that formed at least two clusters.",
		}),
	}

	m.registry.MustRegister(
		m.passes, m.fetched, m.merged, m.created, m.rematched, m.discarded,
		m.transitions, m.failures, m.duration, m.silhouette,
		collectors.NewGoCollector(),
	)
	return m
}

// RegisterDB exports connection pool statistics of db.
func (m *Metrics) RegisterDB(db *sql.DB, name string) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePass implements pipeline.Recorder.
func (m *Metrics) ObservePass(r *pipeline.PassReport, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.passes.WithLabelValues(result).Inc()
	if r == nil {
		return
	}

	m.duration.Observe(r.Elapsed.Seconds())
	m.fetched.Add(float64(r.Fetched))
	m.merged.Add(float64(r.Merged))
	m.created.WithLabelValues("cluster").Add(float64(r.IncidentsCreated - r.Singletons))
	m.created.WithLabelValues("singleton").Add(float64(r.Singletons))
	m.rematched.Add(float64(r.Rematched))
	m.discarded.Add(float64(r.Discarded))
	m.transitions.WithLabelValues("CLOSED").Add(float64(r.Closed))
	m.transitions.WithLabelValues("OPEN").Add(float64(r.Reopened))
	m.failures.WithLabelValues("merge").Add(float64(r.MergeFailures))
	m.failures.WithLabelValues("cluster").Add(float64(r.ClusterFailures))
	if r.SilhouetteOK {
		m.silhouette.Set(r.Silhouette)
	}
}

var _ pipeline.Recorder = (*Metrics)(nil)
