package watch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Ticks          prometheus.Counter
	BackendUp      prometheus.Gauge
	ActiveMonitors prometheus.Gauge
	Alerts         prometheus.Counter
	Transitions    *prometheus.CounterVec
}

// NewMetrics registers the watch collectors on reg. A nil reg gets a private
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "siteaudit_watch_ticks_total",
			Help: "Refresh cycles run.",
		}),
		BackendUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "siteaudit_backend_up",
			Help: "1 if the last health probe succeeded.",
		}),
		ActiveMonitors: f.NewGauge(prometheus.GaugeOpts{
			Name: "siteaudit_active_monitors",
			Help: "Active monitors seen on the last refresh.",
		}),
		Alerts: f.NewCounter(prometheus.CounterOpts{
			Name: "siteaudit_watch_score_drop_alerts_total",
			Help: "Monitor score drops that reached their alert threshold.",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siteaudit_watch_cache_transitions_total",
			Help: "State changes of the watched cache keys, by key and new status.",
		}, []string{"key", "status"}),
	}
}
