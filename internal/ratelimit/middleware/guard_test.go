package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz/internal/platform/logger"
	"quiz/internal/platform/metrics"
	"quiz/internal/ratelimit/models"
	"quiz/internal/ratelimit/service/requestlimit"
	"quiz/internal/ratelimit/store/window"
	"quiz/pkg/platform/dispatch"
	"quiz/pkg/platform/httputil"
	"quiz/pkg/requestcontext"
)

func ok(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	httputil.WriteSuccess(w, rc.RequestID, nil)
	return nil
}

func newHandler(t *testing.T, cfg models.Config) http.Handler {
	t.Helper()
	svc, err := requestlimit.New(window.NewMemoryStore(),
		requestlimit.WithConfig(cfg),
		requestlimit.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	log := logger.Discard()
	d := dispatch.New(log, metrics.NewCollector(), httputil.NewErrorWriter(log, false))
	return d.Wrap(New(svc, false).Wrap(ok))
}

func request(at time.Time) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	r.Header.Set("X-Forwarded-For", "198.51.100.4")
	return r.WithContext(requestcontext.WithTime(r.Context(), at))
}

func TestGuardRejectsOverLimit(t *testing.T) {
	h := newHandler(t, models.Config{Window: time.Minute, MaxRequests: 2})
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := range 2 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(start.Add(time.Duration(i)*time.Second)))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(1-i), w.Header().Get("X-RateLimit-Remaining"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(start.Add(10*time.Second)))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "50", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, strconv.FormatInt(start.Add(time.Minute).Unix(), 10), w.Header().Get("X-RateLimit-Reset"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, request(start.Add(time.Minute+time.Millisecond)))
	assert.Equal(t, http.StatusOK, w.Code, "a new window admits again")
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
}

func TestGuardSeparatesClients(t *testing.T) {
	h := newHandler(t, models.Config{Window: time.Minute, MaxRequests: 1})
	now := time.Now()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request(now))
	require.Equal(t, http.StatusOK, w.Code)

	other := request(now)
	other.Header.Set("X-Forwarded-For", "198.51.100.5")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

type failingLimiter struct{ err error }

func (f failingLimiter) Allow(context.Context, string) (*models.RateLimitResult, error) {
	return nil, f.err
}

func TestGuardPropagatesLimiterError(t *testing.T) {
	called := false
	next := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		called = true
		return nil
	}
	rc := requestcontext.New("req", "1.2.3.4", "", time.Now())

	err := New(failingLimiter{err: context.Canceled}, false).Wrap(next)(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), rc)

	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)
}

func TestGuardDisabled(t *testing.T) {
	var next dispatch.HandlerFunc = ok
	rc := requestcontext.New("req", "1.2.3.4", "", time.Now())
	w := httptest.NewRecorder()

	err := New(failingLimiter{err: errors.New("unused")}, true).Wrap(next)(w, httptest.NewRequest(http.MethodGet, "/", nil), rc)

	require.NoError(t, err)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
