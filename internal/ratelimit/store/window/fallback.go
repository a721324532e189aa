package window

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"quiz/internal/ratelimit/models"
	"quiz/internal/ratelimit/ports"
)

// FallbackStore guards a shared store with a circuit breaker. While the
// primary fails or the circuit is open, hits go to an in-process MemoryStore,
// so limits stay enforced per replica instead of failing open.
type FallbackStore struct {
	primary   ports.WindowStore
	fallback  *MemoryStore
	cb        *gobreaker.CircuitBreaker
	logger    *slog.Logger
	onDegrade func()
}

type FallbackOption func(*fallbackSettings)

type fallbackSettings struct {
	failureThreshold uint32
	openTimeout      time.Duration
	logger           *slog.Logger
	onDegrade        func()
}

// WithFailureThreshold sets how many consecutive primary failures open the circuit.
func WithFailureThreshold(n uint32) FallbackOption {
	return func(s *fallbackSettings) {
		s.failureThreshold = n
	}
}

// WithOpenTimeout sets how long the circuit stays open before probing the primary.
func WithOpenTimeout(d time.Duration) FallbackOption {
	return func(s *fallbackSettings) {
		s.openTimeout = d
	}
}

func WithFallbackLogger(logger *slog.Logger) FallbackOption {
	return func(s *fallbackSettings) {
		s.logger = logger
	}
}

// WithDegradeHook is called every time a hit is served by the fallback.
func WithDegradeHook(fn func()) FallbackOption {
	return func(s *fallbackSettings) {
		s.onDegrade = fn
	}
}

func NewFallbackStore(name string, primary ports.WindowStore, opts ...FallbackOption) *FallbackStore {
	settings := fallbackSettings{
		failureThreshold: 5,
		openTimeout:      10 * time.Second,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&settings)
	}

	s := &FallbackStore{
		primary:   primary,
		fallback:  NewMemoryStore(),
		logger:    settings.logger,
		onDegrade: settings.onDegrade,
	}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.failureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.logger.Warn("rate limit store circuit state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return s
}

func (s *FallbackStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (models.Entry, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.primary.Hit(ctx, key, window, now)
	})
	if err == nil {
		return res.(models.Entry), nil
	}
	if ctx.Err() != nil {
		return models.Entry{}, ctx.Err()
	}
	if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Error("rate limit store failed, using in-memory fallback", "error", err)
	}
	if s.onDegrade != nil {
		s.onDegrade()
	}
	return s.fallback.Hit(ctx, key, window, now)
}

// Sweep sweeps both stores. A primary failure is reported after the fallback is swept.
func (s *FallbackStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	removed, _ := s.fallback.Sweep(ctx, cutoff)
	n, err := s.primary.Sweep(ctx, cutoff)
	return removed + n, err
}

func (s *FallbackStore) Reset(ctx context.Context, key string) error {
	_ = s.fallback.Reset(ctx, key)
	return s.primary.Reset(ctx, key)
}

// State reports the circuit state.
func (s *FallbackStore) State() gobreaker.State {
	return s.cb.State()
}
