package metrics

import (
	"math"
	"sync"
)

// RouteStats is the aggregate for one route.
type RouteStats struct {
	Count   int64   `json:"count"`
	Errors  int64   `json:"errors"`
	AvgMs   int64   `json:"avgMs"`
	TotalMs float64 `json:"totalMs"`
}

// Export is the wire shape served by the metrics endpoint.
type Export struct {
	RequestsTotal        int64                 `json:"requests_total"`
	RequestsErrorsTotal  int64                 `json:"requests_errors_total"`
	AvgRequestDurationMs int64                 `json:"avg_request_duration_ms"`
	Routes               map[string]RouteStats `json:"routes"`
}

// Observer receives every observation in addition to the in-process aggregates.
type Observer interface {
	Observe(route string, durationMs float64, isError bool)
}

type routeEntry struct {
	mu    sync.Mutex
	stats RouteStats
}

// Collector aggregates per-route request counts, errors and durations.
// Route entries are created on first observation and removed only by Reset.
type Collector struct {
	mu       sync.RWMutex
	routes   map[string]*routeEntry
	observer Observer
}

type Option func(*Collector)

// WithObserver mirrors every observation to o (for example the Prometheus exporter).
func WithObserver(o Observer) Option {
	return func(c *Collector) {
		c.observer = o
	}
}

func NewCollector(opts ...Option) *Collector {
	c := &Collector{routes: make(map[string]*routeEntry)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordRequest adds one observation for route. Negative durations count as zero.
func (c *Collector) RecordRequest(route string, durationMs float64, isError bool) {
	if durationMs < 0 || math.IsNaN(durationMs) {
		durationMs = 0
	}

	// The collector lock is held across the update so Reset cannot orphan
	// the entry mid-observation.
	c.mu.RLock()
	entry, ok := c.routes[route]
	if ok {
		entry.add(durationMs, isError)
		c.mu.RUnlock()
	} else {
		c.mu.RUnlock()
		c.mu.Lock()
		if entry, ok = c.routes[route]; !ok {
			entry = &routeEntry{}
			c.routes[route] = entry
		}
		entry.add(durationMs, isError)
		c.mu.Unlock()
	}

	if c.observer != nil {
		c.observer.Observe(route, durationMs, isError)
	}
}

func (e *routeEntry) add(durationMs float64, isError bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Count++
	if isError {
		e.stats.Errors++
	}
	e.stats.TotalMs += durationMs
	e.stats.AvgMs = roundHalfUp(e.stats.TotalMs / float64(e.stats.Count))
}

// Snapshot returns a deep copy of every route aggregate. Each route is copied
// under its own lock so no entry is observed half-updated.
func (c *Collector) Snapshot() map[string]RouteStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]RouteStats, len(c.routes))
	for route, entry := range c.routes {
		entry.mu.Lock()
		out[route] = entry.stats
		entry.mu.Unlock()
	}
	return out
}

// Export returns the snapshot together with process-wide totals.
func (c *Collector) Export() Export {
	routes := c.Snapshot()
	export := Export{Routes: routes}

	var totalMs float64
	for _, s := range routes {
		export.RequestsTotal += s.Count
		export.RequestsErrorsTotal += s.Errors
		totalMs += s.TotalMs
	}
	if export.RequestsTotal > 0 {
		export.AvgRequestDurationMs = roundHalfUp(totalMs / float64(export.RequestsTotal))
	}
	return export
}

// Reset discards every aggregate. It waits for in-flight observations, so
// each one lands either before the reset or in the fresh map.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.routes = make(map[string]*routeEntry)
	c.mu.Unlock()
}

// roundHalfUp matches the dashboard's rounding: halves go toward +Inf.
func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
