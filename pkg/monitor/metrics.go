package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the engine does. A nil *Metrics is a no-op.
type Metrics struct {
	probes          *prometheus.CounterVec
	collections     *prometheus.CounterVec
	collectDuration prometheus.Histogram
	synthesized     *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbmon",
			Name:      "probes_total",
			Help:      "Connection probes by result.",
		}, []string{"result"}),
		collections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbmon",
			Name:      "collections_total",
			Help:      "Status snapshot collections by result.",
		}, []string{"result"}),
		collectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dbmon",
			Name:      "collect_duration_seconds",
			Help:      "Time spent capturing one status snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		synthesized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbmon",
			Name:      "history_synth_total",
			Help:      "Synthesized history responses by time range.",
		}, []string{"range"}),
	}
	if reg != nil {
		reg.MustRegister(m.probes, m.collections, m.collectDuration, m.synthesized)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

func (m *Metrics) observeProbe(err error) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) observeCollect(start time.Time, err error) {
	if m == nil {
		return
	}
	m.collections.WithLabelValues(result(err)).Inc()
	m.collectDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeSynth(token string) {
	if m == nil {
		return
	}
	m.synthesized.WithLabelValues(token).Inc()
}
