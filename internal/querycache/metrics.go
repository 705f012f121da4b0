package querycache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the cache's collectors.
type Metrics struct {
	Hits          *prometheus.CounterVec
	Misses        *prometheus.CounterVec
	Fetches       *prometheus.CounterVec
	Discarded     *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
}

// NewMetrics registers the cache collectors on reg. A nil reg gets a private
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Hits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siteaudit_cache_hits_total",
			Help: "Reads served from a fresh cache entry.",
		}, []string{"key"}),
		Misses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siteaudit_cache_misses_total",
			Help: "Reads that required a fetch.",
		}, []string{"key"}),
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siteaudit_cache_fetches_total",
			Help: "Fetcher invocations after in-flight deduplication.",
		}, []string{"key"}),
		Discarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siteaudit_cache_discarded_total",
			Help: "Responses dropped because the key was invalidated while they were in flight.",
		}, []string{"key"}),
		Invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siteaudit_cache_invalidations_total",
			Help: "Explicit invalidations per key.",
		}, []string{"key"}),
	}
}
