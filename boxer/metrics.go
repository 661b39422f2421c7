package boxer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "boxer"

// Metrics counts driver traffic. A nil registerer yields unregistered
// collectors.
type Metrics struct {
	frames        *prometheus.CounterVec
	failures      *prometheus.CounterVec
	submitted     *prometheus.CounterVec
	notifications prometheus.Counter
}

// NewMetrics registers the driver collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "inbound frames by method",
		}, []string{"method"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "dropped requests by failing stage",
		}, []string{"stage"}),
		submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_submitted_total",
			Help:      "blocks handed to the chain by outcome",
		}, []string{"result"}),
		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "new block frames written",
		}),
	}
}

func (m *Metrics) frameReceived(method string) {
	m.frames.WithLabelValues(method).Inc()
}

func (m *Metrics) requestFailed(stage string) {
	m.failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) blockSubmitted(outcome Outcome) {
	m.submitted.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) notified() {
	m.notifications.Inc()
}
