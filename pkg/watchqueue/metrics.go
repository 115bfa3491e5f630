package watchqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors the engine updates. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Posted    prometheus.Counter
	Delivered prometheus.Counter
	Filtered  prometheus.Counter
	Dropped   prometheus.Counter
	Reclaimed prometheus.Counter
	Queues    prometheus.Gauge
	Watches   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered. Registering twice on the same
// registry panics, as with promauto.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	const ns = "watchqueue"
	return &Metrics{
		Posted: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "posted_total",
			Help:      "Records posted to watch lists.",
		}),
		Delivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "delivered_total",
			Help:      "Records written into a queue slot and published.",
		}),
		Filtered: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "filtered_total",
			Help:      "Per-watch deliveries rejected by the queue filter.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dropped_total",
			Help:      "Records lost because the target queue had no free slot.",
		}),
		Reclaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reclaimed_total",
			Help:      "Deferred reclamation callbacks run.",
		}),
		Queues: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "queues",
			Help:      "Queues whose storage has not been reclaimed.",
		}),
		Watches: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "watches",
			Help:      "Watches not yet reclaimed.",
		}),
	}
}

func (m *Metrics) posted() {
	if m != nil {
		m.Posted.Inc()
	}
}

func (m *Metrics) delivered() {
	if m != nil {
		m.Delivered.Inc()
	}
}

func (m *Metrics) filtered() {
	if m != nil {
		m.Filtered.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) reclaimed() {
	if m != nil {
		m.Reclaimed.Inc()
	}
}

func (m *Metrics) queues(delta float64) {
	if m != nil {
		m.Queues.Add(delta)
	}
}

func (m *Metrics) watches(delta float64) {
	if m != nil {
		m.Watches.Add(delta)
	}
}
