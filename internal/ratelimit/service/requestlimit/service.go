package requestlimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quiz/internal/ratelimit/metrics"
	"quiz/internal/ratelimit/models"
	"quiz/internal/ratelimit/ports"
	dErrors "quiz/pkg/domain-errors"
	"quiz/pkg/requestcontext"
)

// WindowStore is the counter store the service drives.
type WindowStore = ports.WindowStore

// Service applies the fixed-window policy to client IPs and sweeps stale counters.
type Service struct {
	store   WindowStore
	config  models.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithConfig(cfg models.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the sweeper's time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(store WindowStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("window store is required")
	}

	svc := &Service{
		store:  store,
		config: models.DefaultConfig(),
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.config = svc.config.Normalize()

	return svc, nil
}

// Config returns the effective policy.
func (s *Service) Config() models.Config {
	return s.config
}

// Allow records one request from ip and reports whether it is admitted.
// Store failures admit the request; only cancellation is returned as an error.
func (s *Service) Allow(ctx context.Context, ip string) (*models.RateLimitResult, error) {
	now := requestcontext.Now(ctx)

	started := time.Now()
	entry, err := s.store.Hit(ctx, models.ClientKey(ip), s.config.Window, now)
	if s.metrics != nil {
		s.metrics.ObserveStoreHit(time.Since(started).Seconds())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if s.metrics != nil {
			s.metrics.IncrementStoreErrors()
		}
		s.logger.ErrorContext(ctx, "rate limit store failed, admitting request",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return &models.RateLimitResult{
			Allowed:   true,
			Limit:     s.config.MaxRequests,
			Remaining: s.config.MaxRequests,
			ResetAt:   now.Add(s.config.Window),
		}, nil
	}

	result := models.Evaluate(entry, now, s.config)
	if !result.Allowed {
		if s.metrics != nil {
			s.metrics.IncrementRejections()
		}
		s.logger.WarnContext(ctx, "rate limit exceeded",
			"ip", ip,
			"count", entry.Count,
			"limit", s.config.MaxRequests,
			"retry_after", result.RetryAfter,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return result, nil
}

// Check is Allow reduced to an error: nil when admitted, a RateLimit error otherwise.
func (s *Service) Check(ctx context.Context, ip string) error {
	result, err := s.Allow(ctx, ip)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return dErrors.RateLimit(result.RetryAfter)
	}
	return nil
}

// Reset clears the counter for ip.
func (s *Service) Reset(ctx context.Context, ip string) error {
	return s.store.Reset(ctx, models.ClientKey(ip))
}

// Sweep evicts counters whose window started more than two windows ago.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock().Add(-2 * s.config.Window)
	removed, err := s.store.Sweep(ctx, cutoff)
	if s.metrics != nil && removed > 0 {
		s.metrics.AddSwept(removed)
	}
	return removed, err
}

// Run sweeps once per window until ctx is cancelled. Sweep failures are logged
// and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				s.logger.WarnContext(ctx, "rate limit sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.DebugContext(ctx, "rate limit sweep", "removed", removed)
			}
		}
	}
}
