package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry holds the pipeline metrics. LiveNamespaces must return to
// its previous value after every query, pass or fail; a residue is a
// namespace leak.
type Telemetry struct {
	QueriesTotal   *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	LiveNamespaces prometheus.Gauge
	SourcesScraped *prometheus.CounterVec
}

// New registers the pipeline collectors on the given registry.
func New(reg prometheus.Registerer) *Telemetry {
	factory := promauto.With(reg)
	return &Telemetry{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cibot_queries_total",
			Help: "Comparison queries by outcome.",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cibot_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		LiveNamespaces: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cibot_live_namespaces",
			Help: "Number of ephemeral index namespaces currently alive.",
		}),
		SourcesScraped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cibot_sources_scraped_total",
			Help: "Scraped sources by result.",
		}, []string{"result"}),
	}
}

// ObserveStage records one stage duration. Nil receivers are allowed so
// telemetry stays optional in tests.
func (t *Telemetry) ObserveStage(stage string, d time.Duration) {
	if t == nil {
		return
	}
	t.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (t *Telemetry) RecordQuery(outcome string) {
	if t == nil {
		return
	}
	t.QueriesTotal.WithLabelValues(outcome).Inc()
}

func (t *Telemetry) NamespaceCreated() {
	if t == nil {
		return
	}
	t.LiveNamespaces.Inc()
}

func (t *Telemetry) RecordSources(result string, n int) {
	if t == nil || n <= 0 {
		return
	}
	t.SourcesScraped.WithLabelValues(result).Add(float64(n))
}

func (t *Telemetry) NamespaceDestroyed() {
	if t == nil {
		return
	}
	t.LiveNamespaces.Dec()
}
