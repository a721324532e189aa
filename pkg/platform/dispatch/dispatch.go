// Package dispatch wraps route handlers with the request pipeline: request
// context, start/end logging, identity attachment, metrics, tracing and
// error translation. Every route passes through Dispatcher.Wrap.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"quiz/internal/platform/logger"
	dErrors "quiz/pkg/domain-errors"
	"quiz/pkg/platform/httputil"
	"quiz/pkg/platform/middleware/metadata"
	"quiz/pkg/requestcontext"
)

// HandlerFunc is a route handler. Returning an error hands the response over
// to the error handler; anything already written is discarded.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error

// Identifier attaches caller identity to the request context before the handler runs.
type Identifier interface {
	Identify(r *http.Request, rc *requestcontext.RequestContext) error
}

// Recorder receives one observation per dispatched request.
type Recorder interface {
	RecordRequest(route string, durationMs float64, isError bool)
}

// ErrorHandler writes the error envelope.
type ErrorHandler interface {
	Handle(ctx context.Context, w http.ResponseWriter, err error, requestID string)
}

// PanicError is returned in place of a handler that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

type Dispatcher struct {
	logger   *logger.Logger
	metrics  Recorder
	errors   ErrorHandler
	identify Identifier
	tracer   trace.Tracer
}

type Option func(*Dispatcher)

// WithIdentifier attaches caller identity on every request.
func WithIdentifier(id Identifier) Option {
	return func(d *Dispatcher) {
		d.identify = id
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

func New(log *logger.Logger, metrics Recorder, errs ErrorHandler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:  log,
		metrics: metrics,
		errors:  errs,
		tracer:  otel.Tracer("quiz/dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wrap adapts h to http.Handler. Errors, panics and cancellations returned
// by h never escape: they are logged, counted and turned into an envelope.
func (d *Dispatcher) Wrap(h HandlerFunc) http.Handler {
	return d.wrap(h, "")
}

// WrapRoute is Wrap with a fixed metrics key, for fallback handlers whose
// request paths are caller-controlled.
func (d *Dispatcher) WrapRoute(route string, h HandlerFunc) http.Handler {
	return d.wrap(h, route)
}

func (d *Dispatcher) wrap(h HandlerFunc, fixedRoute string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := metadata.NewRequestContext(r)
		ctx := requestcontext.With(r.Context(), rc)
		ctx, span := d.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("quiz.request_id", rc.RequestID),
			),
		)
		defer span.End()
		r = r.WithContext(ctx)

		startFields := map[string]any{
			"method":    r.Method,
			"path":      r.URL.Path,
			"query":     queryFields(r),
			"ip":        rc.IP,
			"userAgent": rc.UserAgent,
			"client":    metadata.DescribeUserAgent(rc.UserAgent),
		}
		if sc := span.SpanContext(); sc.HasTraceID() {
			startFields["traceId"] = sc.TraceID().String()
		}
		d.logger.Info(ctx, "request:start", startFields, rc.RequestID)

		buf := newResponseBuffer()
		err := d.run(h, buf, r, rc)
		durationMs := rc.Elapsed()
		route := fixedRoute
		if route == "" {
			route = routeKey(r)
		}

		if err != nil {
			d.fail(ctx, w, buf, err, rc, route, durationMs, span)
			return
		}

		status := buf.statusCode()
		size := buf.body.Len()
		d.logger.Info(ctx, "request:end", withUser(map[string]any{
			"status":       status,
			"durationMs":   roundMs(durationMs),
			"responseSize": size,
		}, rc), rc.RequestID)
		d.metrics.RecordRequest(route, durationMs, status >= http.StatusBadRequest)

		buf.copyHeaders(w.Header(), false)
		w.Header().Set(httputil.HeaderRequestID, rc.RequestID)
		w.WriteHeader(status)
		_, _ = w.Write(buf.body.Bytes())

		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

func (d *Dispatcher) run(h HandlerFunc, w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()

	if d.identify != nil {
		if err := d.identify.Identify(r, rc); err != nil {
			return err
		}
	}
	return h(w, r, rc)
}

func (d *Dispatcher) fail(
	ctx context.Context,
	w http.ResponseWriter,
	buf *responseBuffer,
	err error,
	rc *requestcontext.RequestContext,
	route string,
	durationMs float64,
	span trace.Span,
) {
	status := dErrors.Classify(err).Status()

	d.logger.Error(ctx, "request:error", withUser(map[string]any{
		"status":       status,
		"errorMessage": err.Error(),
		"errorType":    errorType(err),
		"durationMs":   roundMs(durationMs),
	}, rc), rc.RequestID)
	d.metrics.RecordRequest(route, durationMs, true)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	// Headers the handler set before failing (rate limit headers, for example) survive.
	buf.copyHeaders(w.Header(), true)
	d.errors.Handle(ctx, w, err, rc.RequestID)
}

// UnmatchedRoute keys requests that went through a chi router without
// matching a pattern.
const UnmatchedRoute = "UNMATCHED"

// routeKey prefers the chi route pattern so /quizzes/{id} aggregates as one route.
// Outside a router the path is used as is.
func routeKey(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return UnmatchedRoute
}

// queryFields keys the query string by parameter name so sensitive names are
// redacted like any other field.
func queryFields(r *http.Request) map[string]any {
	values := r.URL.Query()
	out := make(map[string]any, len(values))
	for name, v := range values {
		if len(v) == 1 {
			out[name] = v[0]
			continue
		}
		out[name] = v
	}
	return out
}

func errorType(err error) string {
	var de *dErrors.Error
	var pe *PanicError
	switch {
	case errors.As(err, &de):
		return de.Kind.String()
	case errors.As(err, &pe):
		return "Panic"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	default:
		return "Error"
	}
}

func withUser(fields map[string]any, rc *requestcontext.RequestContext) map[string]any {
	if id := rc.UserID(); id != "" {
		fields["userId"] = id
	}
	return fields
}

func roundMs(ms float64) float64 {
	return math.Round(ms*100) / 100
}
