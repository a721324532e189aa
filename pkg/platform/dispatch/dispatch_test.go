package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"quiz/internal/auth/token"
	"quiz/internal/platform/logger"
	"quiz/internal/platform/metrics"
	dErrors "quiz/pkg/domain-errors"
	"quiz/pkg/platform/httputil"
	authmw "quiz/pkg/platform/middleware/auth"
	"quiz/pkg/requestcontext"
)

type DispatchSuite struct {
	suite.Suite
	logs      *bytes.Buffer
	collector *metrics.Collector
	spans     *tracetest.SpanRecorder
	d         *Dispatcher
}

func TestDispatchSuite(t *testing.T) {
	suite.Run(t, new(DispatchSuite))
}

func (s *DispatchSuite) SetupTest() {
	s.logs = &bytes.Buffer{}
	log := logger.New(logger.Options{Writer: s.logs, Level: logger.LevelDebug})
	s.collector = metrics.NewCollector()
	s.spans = tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(s.spans))

	s.d = New(log, s.collector, httputil.NewErrorWriter(log, false),
		WithIdentifier(authmw.NewAuthenticator(token.NewLegacyCodec(0), log.Slog())),
		WithTracer(tp.Tracer("test")),
	)
}

func (s *DispatchSuite) entries() []map[string]any {
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(s.logs.Bytes()))
	for sc.Scan() {
		var entry map[string]any
		s.Require().NoError(json.Unmarshal(sc.Bytes(), &entry))
		out = append(out, entry)
	}
	return out
}

func (s *DispatchSuite) entry(event string) map[string]any {
	for _, e := range s.entries() {
		if e["event"] == event {
			return e
		}
	}
	s.FailNow("missing log entry", event)
	return nil
}

func (s *DispatchSuite) serve(h HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.d.Wrap(h).ServeHTTP(w, r)
	return w
}

func (s *DispatchSuite) TestSuccess() {
	var seen *requestcontext.RequestContext
	h := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		seen = requestcontext.From(r.Context())
		w.Header().Set("X-Custom", "yes")
		httputil.WriteSuccess(w, rc.RequestID, map[string]string{"hello": "world"})
		return nil
	}

	r := httptest.NewRequest(http.MethodGet, "/api/test?x=1", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	w := s.serve(h, r)

	s.Equal(http.StatusOK, w.Code)
	s.Equal("yes", w.Header().Get("X-Custom"))
	s.Require().NotNil(seen)
	s.Equal(seen.RequestID, w.Header().Get(httputil.HeaderRequestID))
	s.Equal("203.0.113.7", seen.IP)

	start := s.entry("request:start")
	s.Equal("GET", start["method"])
	s.Equal("/api/test", start["path"])
	s.Equal(map[string]any{"x": "1"}, start["query"])
	s.Equal("203.0.113.7", start["ip"])
	s.NotEmpty(start["traceId"])

	end := s.entry("request:end")
	s.Equal(float64(http.StatusOK), end["status"])
	s.Equal(seen.RequestID, end["requestId"])
	s.Contains(end, "durationMs")
	s.Greater(end["responseSize"], float64(0))

	stats := s.collector.Snapshot()["/api/test"]
	s.Equal(int64(1), stats.Count)
	s.Zero(stats.Errors)
	s.Len(s.spans.Ended(), 1)
}

func (s *DispatchSuite) TestTypedError() {
	h := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-RateLimit-Limit", "100")
		_, _ = w.Write([]byte("partial"))
		return dErrors.Validation("Invalid input", map[string]any{"field": "email"})
	}

	w := s.serve(h, httptest.NewRequest(http.MethodPost, "/api/test", nil))

	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("application/json", w.Header().Get("Content-Type"))
	s.Equal("100", w.Header().Get("X-RateLimit-Limit"))
	s.NotContains(w.Body.String(), "partial")

	var body httputil.ErrorResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&body))
	s.Equal(dErrors.CodeValidation, body.Error)
	s.Equal("email", body.Details["field"])

	errEntry := s.entry("request:error")
	s.Equal(float64(http.StatusBadRequest), errEntry["status"])
	s.Equal("ValidationError", errEntry["errorType"])
	s.Equal("Invalid input", errEntry["errorMessage"])
	s.entry("error:handled")

	stats := s.collector.Snapshot()["/api/test"]
	s.Equal(int64(1), stats.Count)
	s.Equal(int64(1), stats.Errors)
}

func (s *DispatchSuite) TestPanicBecomesInternalError() {
	h := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		panic("boom")
	}

	w := s.serve(h, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	s.Equal(http.StatusInternalServerError, w.Code)
	var body httputil.ErrorResponse
	s.Require().NoError(json.NewDecoder(w.Body).Decode(&body))
	s.Equal(dErrors.MessageInternal, body.Message)
	s.Equal("Panic", s.entry("request:error")["errorType"])
	s.Equal(int64(1), s.collector.Snapshot()["/api/test"].Errors)
}

func (s *DispatchSuite) TestCancellationIsAnError() {
	h := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		ctx, cancel := context.WithCancel(r.Context())
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	w := s.serve(h, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	s.Equal(http.StatusInternalServerError, w.Code)
	s.Equal("Canceled", s.entry("request:error")["errorType"])
}

func (s *DispatchSuite) TestStatusAtLeast400CountsAsError() {
	h := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		w.WriteHeader(http.StatusNotFound)
		return nil
	}

	w := s.serve(h, httptest.NewRequest(http.MethodGet, "/missing", nil))

	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(int64(1), s.collector.Snapshot()["/missing"].Errors)
}

func (s *DispatchSuite) TestIdentityAttached() {
	raw, err := token.NewLegacyCodec(0).Issue("", token.RoleAdmin, time.Now())
	s.Require().NoError(err)

	var user, admin string
	h := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		user, admin = rc.UserID(), rc.AdminID()
		return nil
	}
	r := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	w := s.serve(h, r)

	s.Equal(http.StatusOK, w.Code)
	s.Equal("admin", user)
	s.Equal("admin", admin)
	s.Equal("admin", s.entry("request:end")["userId"])
}

func (s *DispatchSuite) TestInvalidTokenNeverReachesHandler() {
	called := false
	h := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		called = true
		return nil
	}
	r := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	r.Header.Set("Authorization", "Bearer garbage")

	w := s.serve(h, r)

	s.False(called)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *DispatchSuite) TestRouteKeyUsesChiPattern() {
	router := chi.NewRouter()
	router.Method(http.MethodGet, "/quizzes/{id}", s.d.Wrap(func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		return nil
	}))

	for _, id := range []string{"1", "2"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quizzes/"+id, nil))
	}

	snapshot := s.collector.Snapshot()
	s.Equal(int64(2), snapshot["/quizzes/{id}"].Count)
	s.NotContains(snapshot, "/quizzes/1")
}

func (s *DispatchSuite) TestQueryParametersAreRedacted() {
	h := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		return nil
	}

	s.serve(h, httptest.NewRequest(http.MethodGet, "/api/reset?token=s3cr3t-tok&password=hunter2&page=2&tag=a&tag=b", nil))

	s.NotContains(s.logs.String(), "s3cr3t-tok")
	s.NotContains(s.logs.String(), "hunter2")
	query, ok := s.entry("request:start")["query"].(map[string]any)
	s.Require().True(ok)
	s.Equal(logger.Redacted, query["token"])
	s.Equal(logger.Redacted, query["password"])
	s.Equal("2", query["page"])
	s.Equal([]any{"a", "b"}, query["tag"])
}

func (s *DispatchSuite) TestWrapRouteUsesFixedKey() {
	h := func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		return dErrors.NotFound("Not Found")
	}
	wrapped := s.d.WrapRoute("NOT_FOUND", h)

	for _, path := range []string{"/scan/1", "/scan/2", "/wp-login.php"} {
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	snapshot := s.collector.Snapshot()
	s.Len(snapshot, 1)
	s.Equal(int64(3), snapshot["NOT_FOUND"].Errors)
}

func (s *DispatchSuite) TestUnmatchedChiRouteIsBucketed() {
	router := chi.NewRouter()
	router.NotFound(s.d.Wrap(func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
		return dErrors.NotFound("Not Found")
	}).ServeHTTP)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/2", nil))

	snapshot := s.collector.Snapshot()
	s.Equal(int64(2), snapshot[UnmatchedRoute].Count)
	s.NotContains(snapshot, "/nope/1")
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "AuthError", errorType(dErrors.Auth("")))
	assert.Equal(t, "RateLimitError", errorType(dErrors.RateLimit(3)))
	assert.Equal(t, "Panic", errorType(&PanicError{Value: 1}))
	assert.Equal(t, "DeadlineExceeded", errorType(context.DeadlineExceeded))
	assert.Equal(t, "Error", errorType(errors.New("x")))
}

func TestResponseBuffer(t *testing.T) {
	b := newResponseBuffer()
	_, err := b.Write([]byte("a"))
	require.NoError(t, err)
	b.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, b.statusCode(), "first write fixes the status")
	assert.Equal(t, "a", b.body.String())
}
