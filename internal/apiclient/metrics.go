package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the transport's collectors.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	TransportErrors *prometheus.CounterVec
}

// NewMetrics registers the transport collectors on reg. A nil reg gets a
// private registry so callers never need to nil-check.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siteaudit_api_request_duration_seconds",
			Help:    "Latency of backend API requests by operation and status code.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op", "code"}),

		TransportErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "siteaudit_api_transport_errors_total",
			Help: "Requests that obtained no HTTP response.",
		}, []string{"op"}),
	}
}
