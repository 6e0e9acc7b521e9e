package meter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publish attempt results, used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// PublishMetrics records publish attempts. It satisfies push.Metrics.
type PublishMetrics struct {
	attempts    *prometheus.CounterVec
	duration    prometheus.Histogram
	inFlight    prometheus.Gauge
	lastSuccess prometheus.Gauge
}

// NewPublishMetrics registers the publish metrics on reg. It panics if they
// are already registered there.
func NewPublishMetrics(reg prometheus.Registerer, namespace string) *PublishMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)
	return &PublishMetrics{
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "attempts_total",
				Help:      "Publish triggers by result (success, failure, skipped)",
			},
			[]string{"result"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "duration_seconds",
				Help:      "Time spent in a publish that ran",
				Buckets:   prometheus.DefBuckets,
			},
		),
		inFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "in_flight",
				Help:      "1 while a publish is running",
			},
		),
		lastSuccess: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "publish",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful publish",
			},
		),
	}
}

func (m *PublishMetrics) PublishStarted() { m.inFlight.Inc() }

func (m *PublishMetrics) PublishFinished(took time.Duration, err error) {
	m.inFlight.Dec()
	m.duration.Observe(took.Seconds())
	if err != nil {
		m.attempts.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.attempts.WithLabelValues(ResultSuccess).Inc()
	m.lastSuccess.SetToCurrentTime()
}

func (m *PublishMetrics) PublishSkipped() { m.attempts.WithLabelValues(ResultSkipped).Inc() }
