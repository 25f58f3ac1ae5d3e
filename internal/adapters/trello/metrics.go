package trello

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamePrefix = "cardclock_trello_"

// Metrics counts outbound requests and retries. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	retries  *prometheus.CounterVec
	waits    prometheus.Histogram
}

// NewMetrics registers the client metrics with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(registry)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricNamePrefix + "requests_total",
			Help: "Total Trello API requests by operation and response code",
		}, []string{"operation", "code"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: metricNamePrefix + "retries_total",
			Help: "Total Trello API retries by operation",
		}, []string{"operation"}),
		waits: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    metricNamePrefix + "throttle_wait_seconds",
			Help:    "Time spent waiting on the client-side rate limiter",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
	}
}

func (m *Metrics) observeRequest(operation string, statusCode int) {
	if m == nil {
		return
	}
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	m.requests.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) observeRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) observeWait(seconds float64) {
	if m == nil {
		return
	}
	m.waits.Observe(seconds)
}
