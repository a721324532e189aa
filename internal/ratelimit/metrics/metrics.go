package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejections       prometheus.Counter
	StoreFallbacks   prometheus.Counter
	StoreErrors      prometheus.Counter
	SweptEntries     prometheus.Counter
	StoreHitDuration prometheus.Histogram
}

// New registers the rate limit metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_ratelimit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
		StoreFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_ratelimit_store_fallbacks_total",
			Help: "Total number of hits served by the in-memory fallback store",
		}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_ratelimit_store_errors_total",
			Help: "Total number of rate limit store failures that let a request through",
		}),
		SweptEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "quiz_ratelimit_swept_entries_total",
			Help: "Total number of expired rate limit entries evicted by the sweeper",
		}),
		StoreHitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_ratelimit_store_hit_duration_seconds",
			Help:    "Latency of rate limit store hits",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncrementRejections() {
	m.Rejections.Inc()
}

func (m *Metrics) IncrementStoreFallbacks() {
	m.StoreFallbacks.Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}

func (m *Metrics) AddSwept(n int) {
	m.SweptEntries.Add(float64(n))
}

func (m *Metrics) ObserveStoreHit(seconds float64) {
	m.StoreHitDuration.Observe(seconds)
}
