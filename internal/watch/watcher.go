// Package watch periodically refreshes the cached resources and reports
// backend liveness and monitor score drops.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/siteaudit/internal/apiclient"
	"github.com/kalambet/siteaudit/internal/querycache"
	"github.com/kalambet/siteaudit/internal/resource"
)

// Resources is what a Watcher refreshes. *resource.Hooks satisfies it.
type Resources interface {
	Health(ctx context.Context) bool
	History(ctx context.Context) (querycache.Result[[]apiclient.AnalysisResult], error)
	Monitors(ctx context.Context) (querycache.Result[[]apiclient.Monitor], error)
	Cache() *querycache.Cache
}

// Alert reports a monitor whose last score fell by at least its threshold
// between two ticks.
type Alert struct {
	MonitorID int64   `json:"monitor_id" yaml:"monitor_id"`
	URL       string  `json:"url" yaml:"url"`
	Previous  float64 `json:"previous" yaml:"previous"`
	Current   float64 `json:"current" yaml:"current"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

func (a Alert) String() string {
	return fmt.Sprintf("%s dropped from %.0f to %.0f (threshold %.0f)", a.URL, a.Previous, a.Current, a.Threshold)
}

// Tick is the outcome of one refresh.
type Tick struct {
	At           time.Time `json:"at" yaml:"at"`
	BackendUp    bool      `json:"backend_up" yaml:"backend_up"`
	HistoryCount int       `json:"history_count" yaml:"history_count"`
	ActiveCount  int       `json:"active_monitors" yaml:"active_monitors"`
	Alerts       []Alert   `json:"alerts,omitempty" yaml:"alerts,omitempty"`
	Err          string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Watcher refreshes history and monitors on a fixed interval.
type Watcher struct {
	res      Resources
	interval time.Duration
	metrics  *Metrics
	logger   *slog.Logger
	onTick   func(Tick)
	now      func() time.Time

	mu         sync.Mutex
	last       Tick
	lastScores map[int64]float64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithMetrics sets the collectors the watcher reports to.
func WithMetrics(m *Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// OnTick registers a callback run after every tick.
func OnTick(fn func(Tick)) Option {
	return func(w *Watcher) { w.onTick = fn }
}

// NewWatcher creates a Watcher. If interval is <= 0, it defaults to 30s.
func NewWatcher(res Resources, interval time.Duration, opts ...Option) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	w := &Watcher{
		res:        res,
		interval:   interval,
		logger:     slog.Default(),
		now:        time.Now,
		lastScores: make(map[int64]float64),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}
	return w
}

// Run ticks until ctx is cancelled. The first tick runs immediately. While
// it runs, every state change of the watched keys is logged and counted.
func (w *Watcher) Run(ctx context.Context) {
	cache := w.res.Cache()
	for _, key := range []querycache.Key{resource.HistoryKey, resource.MonitorsKey} {
		unsubscribe := cache.Subscribe(key, w.observe)
		defer unsubscribe()
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("watch tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

// RunOnce probes the backend, invalidates the watched keys and reads them
// again. A down backend is not an error; the tick just reports it.
func (w *Watcher) RunOnce(ctx context.Context) (Tick, error) {
	tick := Tick{At: w.now()}
	w.metrics.Ticks.Inc()

	tick.BackendUp = w.res.Health(ctx)
	if tick.BackendUp {
		w.metrics.BackendUp.Set(1)
	} else {
		w.metrics.BackendUp.Set(0)
		w.record(tick)
		return tick, nil
	}

	w.res.Cache().Invalidate(resource.HistoryKey, resource.MonitorsKey)

	// The two reads share nothing; a failed history fetch must not cancel
	// the monitors fetch, or the other way round.
	var (
		history                 querycache.Result[[]apiclient.AnalysisResult]
		monitors                querycache.Result[[]apiclient.Monitor]
		historyErr, monitorsErr error
		g                       errgroup.Group
	)
	g.Go(func() error {
		history, historyErr = w.res.History(ctx)
		return nil
	})
	g.Go(func() error {
		monitors, monitorsErr = w.res.Monitors(ctx)
		return nil
	})
	g.Wait()

	var errs []error
	if historyErr != nil {
		errs = append(errs, fmt.Errorf("refreshing history: %w", historyErr))
	} else {
		tick.HistoryCount = len(history.Data)
	}
	if monitorsErr != nil {
		errs = append(errs, fmt.Errorf("refreshing monitors: %w", monitorsErr))
	} else {
		for _, m := range monitors.Data {
			if m.IsActive {
				tick.ActiveCount++
			}
		}
		w.metrics.ActiveMonitors.Set(float64(tick.ActiveCount))
		tick.Alerts = w.detectDrops(monitors.Data)
		w.metrics.Alerts.Add(float64(len(tick.Alerts)))
		for _, a := range tick.Alerts {
			w.logger.Info("monitor score dropped", "monitor_id", a.MonitorID, "url", a.URL, "previous", a.Previous, "current", a.Current)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		tick.Err = err.Error()
	}
	w.record(tick)
	return tick, err
}

// detectDrops compares each monitor's last score with the one seen on the
// previous tick.
func (w *Watcher) detectDrops(monitors []apiclient.Monitor) []Alert {
	w.mu.Lock()
	defer w.mu.Unlock()

	var alerts []Alert
	for _, m := range monitors {
		if m.LastScore == nil {
			continue
		}
		cur := *m.LastScore
		if prev, ok := w.lastScores[m.ID]; ok && m.Threshold > 0 && prev-cur >= m.Threshold {
			alerts = append(alerts, Alert{
				MonitorID: m.ID,
				URL:       m.URL,
				Previous:  prev,
				Current:   cur,
				Threshold: m.Threshold,
			})
		}
		w.lastScores[m.ID] = cur
	}
	return alerts
}

func (w *Watcher) observe(s querycache.Snapshot) {
	w.metrics.Transitions.WithLabelValues(string(s.Key), s.Status.String()).Inc()
	if s.Err != nil {
		w.logger.Debug("cache entry changed", "key", s.Key, "status", s.Status, "stale", s.Stale, "error", s.Err)
		return
	}
	w.logger.Debug("cache entry changed", "key", s.Key, "status", s.Status, "stale", s.Stale)
}

func (w *Watcher) record(t Tick) {
	w.mu.Lock()
	w.last = t
	w.mu.Unlock()
	if w.onTick != nil {
		w.onTick(t)
	}
}

// Last returns the most recent tick, and false before the first one.
func (w *Watcher) Last() (Tick, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, !w.last.At.IsZero()
}
