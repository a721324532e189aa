// Package middleware applies the per-IP request limit in front of dispatched handlers.
package middleware

import (
	"context"
	"net/http"
	"strconv"

	"quiz/internal/ratelimit/models"
	dErrors "quiz/pkg/domain-errors"
	"quiz/pkg/platform/dispatch"
	"quiz/pkg/requestcontext"
)

// Limiter decides whether a client may proceed.
type Limiter interface {
	Allow(ctx context.Context, ip string) (*models.RateLimitResult, error)
}

// Guard rate limits the handlers it wraps.
type Guard struct {
	limiter  Limiter
	disabled bool
}

func New(limiter Limiter, disabled bool) *Guard {
	return &Guard{limiter: limiter, disabled: disabled}
}

// Wrap counts the request against the caller's IP before next runs. A
// rejected request returns a RateLimit error, which the dispatcher turns into
// a 429 with Retry-After; the X-RateLimit-* headers are set either way.
func (g *Guard) Wrap(next dispatch.HandlerFunc) dispatch.HandlerFunc {
	if g.disabled {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		result, err := g.limiter.Allow(r.Context(), rc.IP)
		if err != nil {
			return err
		}
		addRateLimitHeaders(w, result)

		if !result.Allowed {
			return dErrors.RateLimit(result.RetryAfter)
		}
		return next(w, r, rc)
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
