package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/siteaudit/internal/querycache"
)

type cacheEntry struct {
	Key       querycache.Key    `json:"key"`
	Status    querycache.Status `json:"status"`
	Stale     bool              `json:"stale"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func toCacheEntry(s querycache.Snapshot) cacheEntry {
	e := cacheEntry{Key: s.Key, Status: s.Status, Stale: s.Stale}
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		e.UpdatedAt = &t
	}
	if s.Err != nil {
		e.Error = s.Err.Error()
	}
	return e
}

// NewStatusHandler serves the watcher's state:
//
//	GET /healthz      last tick, 503 while the backend is down
//	GET /metrics      Prometheus exposition of gatherer
//	GET /cache        every cache entry, without data
//	GET /cache/{key}  one cache entry
func NewStatusHandler(w *Watcher, cache *querycache.Cache, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealthz(w))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/cache", handleCacheList(cache))
	r.Get("/cache/{key}", handleCacheEntry(cache))

	return r
}

func handleHealthz(w *Watcher) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		tick, ok := w.Last()
		if !ok {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"status": "starting"})
			return
		}
		code := http.StatusOK
		status := "ok"
		if !tick.BackendUp {
			code = http.StatusServiceUnavailable
			status = "backend_down"
		}
		writeJSON(rw, code, map[string]any{"status": status, "last_tick": tick})
	}
}

func handleCacheList(cache *querycache.Cache) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		keys := cache.Keys()
		slices.Sort(keys)
		entries := make([]cacheEntry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, toCacheEntry(cache.Snapshot(k)))
		}
		writeJSON(rw, http.StatusOK, entries)
	}
}

func handleCacheEntry(cache *querycache.Cache) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		key := querycache.Key(chi.URLParam(r, "key"))
		if !slices.Contains(cache.Keys(), key) {
			httpError(rw, http.StatusNotFound, "unknown cache key %q", key)
			return
		}
		writeJSON(rw, http.StatusOK, toCacheEntry(cache.Snapshot(key)))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{"detail": fmt.Sprintf(format, args...)})
}
