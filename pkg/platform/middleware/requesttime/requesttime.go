// Package requesttime pins one "now" per request so the rate limiter, token
// checks and audit timestamps of a single request agree.
package requesttime

import (
	"net/http"
	"time"

	"quiz/pkg/requestcontext"
)

// Middleware stores the arrival time in the request context. A time already
// pinned upstream (tests, replay tooling) is kept.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pinned := r.Context().Value(requestcontext.ContextKeyRequestTime).(time.Time); pinned {
			next.ServeHTTP(w, r)
			return
		}
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
