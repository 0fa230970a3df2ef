package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Consume outcomes.
const (
	outcomeOK           = "ok"
	outcomeDuplicate    = "duplicate"
	outcomeFailed       = "failed"
	outcomeDeadLettered = "dead_lettered"
	outcomeUndecodable  = "undecodable"
)

type busMetrics struct {
	consumed       *prometheus.CounterVec
	handleDuration *prometheus.HistogramVec
	published      *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec
}

func newBusMetrics(reg prometheus.Registerer) *busMetrics {
	f := promauto.With(reg)
	return &busMetrics{
		consumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adexify_events_consumed_total",
			Help: "Consumed events by outcome.",
		}, []string{"topic", "group", "outcome"}),
		handleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adexify_event_handle_seconds",
			Help:    "Handler time per event including retries.",
			Buckets: []float64{.005, .025, .1, .5, 1, 5, 15},
		}, []string{"topic", "group"}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "adexify_events_published_total",
			Help: "Publish attempts by result.",
		}, []string{"topic", "result"}),
		publishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adexify_event_publish_seconds",
			Help:    "Broker write latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

var metrics = newBusMetrics(prometheus.DefaultRegisterer)

func (m *busMetrics) handled(topic, group, outcome string, took time.Duration) {
	m.handleDuration.WithLabelValues(topic, group).Observe(took.Seconds())
	m.consumed.WithLabelValues(topic, group, outcome).Inc()
}

func (m *busMetrics) publishDone(topic string, took time.Duration, err error) {
	m.publishLatency.WithLabelValues(topic).Observe(took.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(topic, result).Inc()
}
