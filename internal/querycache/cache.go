// Package querycache is a keyed store of fetched results with explicit
// invalidation and change subscriptions.
//
// For a given key at most one fetch is authoritative at a time. Every
// invalidation bumps the key's generation; a fetch only commits its result
// if the generation it started under is still current, so a response to a
// request issued before an invalidation never overwrites the state produced
// after it.
package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Key identifies a logical resource, e.g. "history" or "audit:12".
type Key string

// family is the key's prefix before ':' and is used as the metrics label.
func (k Key) family() string {
	if i := strings.IndexByte(string(k), ':'); i >= 0 {
		return string(k[:i])
	}
	return string(k)
}

// Status is the lifecycle state of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText renders the status name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a point-in-time copy of an entry.
type Snapshot struct {
	Key       Key       `json:"key" yaml:"key"`
	Status    Status    `json:"status" yaml:"status"`
	Data      any       `json:"data,omitempty" yaml:"data,omitempty"`
	Err       error     `json:"-" yaml:"-"`
	Stale     bool      `json:"stale" yaml:"stale"`
	UpdatedAt time.Time `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`

	// Seq grows with every state change of the entry.
	Seq uint64 `json:"seq" yaml:"seq"`
}

// FetchFunc loads the value for a key.
type FetchFunc func(ctx context.Context) (any, error)

// ReadOptions controls a single Read.
type ReadOptions struct {
	// Disabled suppresses all network activity; Read returns the current
	// snapshot untouched.
	Disabled bool
	// StaleTime is how long a successful result is served without
	// refetching. Zero uses the cache default.
	StaleTime time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the collectors the cache reports to.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithStaleTime sets the default freshness window. The default is zero:
// every read refetches unless a fetch for the key is already in flight.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) { c.staleTime = d }
}

type entry struct {
	gen       uint64
	seq       uint64
	status    Status
	data      any
	err       error
	stale     bool
	updatedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	subs    map[Key]map[string]func(Snapshot)
	group   singleflight.Group

	// pubMu serializes delivery; delivered is the last Seq sent per key.
	pubMu     sync.Mutex
	delivered map[Key]uint64

	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
	staleTime time.Duration
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[Key]*entry),
		subs:      make(map[Key]map[string]func(Snapshot)),
		delivered: make(map[Key]uint64),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// entryLocked returns the entry for key, creating an idle one. c.mu must be held.
func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

func (e *entry) snapshot(key Key) Snapshot {
	return Snapshot{
		Key:       key,
		Status:    e.status,
		Data:      e.data,
		Err:       e.err,
		Stale:     e.stale,
		UpdatedAt: e.updatedAt,
		Seq:       e.seq,
	}
}

func (c *Cache) fresh(e *entry, staleTime time.Duration) bool {
	if e.status != StatusSuccess || e.stale {
		return false
	}
	if staleTime == 0 {
		staleTime = c.staleTime
	}
	return staleTime > 0 && c.now().Sub(e.updatedAt) < staleTime
}

// Read returns the value for key, fetching it unless a fresh result is
// cached. Concurrent reads of the same key share one fetch. The returned
// error is the fetch error, also recorded on the entry.
//
// A fetch that completes after the key was invalidated still returns its
// result to the callers that awaited it, but the entry is left alone. A
// failed fetch returns the last successful data, marked stale.
func (c *Cache) Read(ctx context.Context, key Key, fetch FetchFunc, opts ReadOptions) (Snapshot, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if opts.Disabled {
		snap := e.snapshot(key)
		c.mu.Unlock()
		return snap, nil
	}
	if c.fresh(e, opts.StaleTime) {
		snap := e.snapshot(key)
		c.mu.Unlock()
		c.metrics.Hits.WithLabelValues(key.family()).Inc()
		return snap, nil
	}

	c.metrics.Misses.WithLabelValues(key.family()).Inc()
	gen := e.gen
	var loading *Snapshot
	if e.status != StatusLoading {
		e.status = StatusLoading
		e.seq++
		s := e.snapshot(key)
		loading = &s
	}
	c.mu.Unlock()
	if loading != nil {
		c.publish(*loading)
	}

	flightKey := fmt.Sprintf("%s#%d", key, gen)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		c.metrics.Fetches.WithLabelValues(key.family()).Inc()
		data, err := fetch(ctx)
		c.commit(key, gen, data, err)
		return data, err
	})

	snap := Snapshot{Key: key, Data: v, Err: err, Status: StatusSuccess, UpdatedAt: c.now()}
	c.mu.Lock()
	e = c.entryLocked(key)
	snap.Seq = e.seq
	if err != nil {
		snap.Status = StatusError
		snap.Data = e.data
		snap.Stale = e.data != nil
	}
	c.mu.Unlock()
	return snap, err
}

func (c *Cache) commit(key Key, gen uint64, data any, err error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if current := e.gen; current != gen {
		c.mu.Unlock()
		c.metrics.Discarded.WithLabelValues(key.family()).Inc()
		c.logger.Debug("discarding superseded response", "key", key, "gen", gen, "current", current)
		return
	}
	if err != nil {
		e.status = StatusError
		e.err = err
	} else {
		e.status = StatusSuccess
		e.data = data
		e.err = nil
		e.stale = false
	}
	e.updatedAt = c.now()
	e.seq++
	snap := e.snapshot(key)
	c.mu.Unlock()
	c.publish(snap)
}

// Invalidate marks each key stale so the next Read refetches. Any fetch
// in flight for the key loses the right to commit.
func (c *Cache) Invalidate(keys ...Key) {
	for _, key := range keys {
		c.mu.Lock()
		e := c.entryLocked(key)
		e.gen++
		e.stale = true
		e.status = StatusIdle
		e.seq++
		snap := e.snapshot(key)
		c.mu.Unlock()

		c.metrics.Invalidations.WithLabelValues(key.family()).Inc()
		c.logger.Debug("cache invalidated", "key", key)
		c.publish(snap)
	}
}

// InvalidatePrefix invalidates every known key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	var keys []Key
	for k := range c.entries {
		if strings.HasPrefix(string(k), prefix) {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	c.Invalidate(keys...)
}

// Reset drops the cached data for each key, returning it to idle. In-flight
// fetches are superseded as with Invalidate.
func (c *Cache) Reset(keys ...Key) {
	for _, key := range keys {
		c.mu.Lock()
		e := c.entryLocked(key)
		*e = entry{gen: e.gen + 1, seq: e.seq + 1}
		snap := e.snapshot(key)
		c.mu.Unlock()
		c.publish(snap)
	}
}

// Snapshot returns the current state of key without fetching.
func (c *Cache) Snapshot(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.snapshot(key)
	}
	return Snapshot{Key: key, Status: StatusIdle}
}

// Keys returns every key the cache has seen.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Subscribe registers fn to receive the state transitions of key in order.
// A transition that loses a race to a newer one is skipped, so fn never sees
// an older state after a newer one. fn runs on the goroutine that caused the
// transition and must not block or call back into the cache. The returned
// func unsubscribes.
func (c *Cache) Subscribe(key Key, fn func(Snapshot)) (unsubscribe func()) {
	id := uuid.NewString()
	c.mu.Lock()
	m, ok := c.subs[key]
	if !ok {
		m = make(map[string]func(Snapshot))
		c.subs[key] = m
	}
	m[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs[key], id)
			if len(c.subs[key]) == 0 {
				delete(c.subs, key)
			}
		})
	}
}

func (c *Cache) publish(snap Snapshot) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if snap.Seq <= c.delivered[snap.Key] {
		return
	}
	c.delivered[snap.Key] = snap.Seq

	c.mu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs[snap.Key]))
	for _, fn := range c.subs[snap.Key] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
