// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// The dispatch wrapper builds one RequestContext per inbound request and stores it
// in the request's context.Context. Handlers and services read it back:
//
//	rc := requestcontext.From(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.With(ctx, requestcontext.New("req-1", "10.0.0.1", "curl/8", time.Now()))
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// SystemRequestID tags log entries that do not belong to a request.
const SystemRequestID = "system"

// RequestContext is the per-request record. RequestID, IP, UserAgent and
// StartTime are fixed at construction; the identity fields can be set once.
type RequestContext struct {
	RequestID string
	IP        string
	UserAgent string
	StartTime time.Time

	userID  string
	adminID string
}

// New builds a RequestContext. StartTime should come from time.Now so it carries
// a monotonic reading.
func New(requestID, ip, userAgent string, start time.Time) *RequestContext {
	return &RequestContext{
		RequestID: requestID,
		IP:        ip,
		UserAgent: userAgent,
		StartTime: start,
	}
}

// UserID returns the authenticated caller, or "" for anonymous requests.
func (rc *RequestContext) UserID() string {
	if rc == nil {
		return ""
	}
	return rc.userID
}

// AdminID returns the admin identity, or "" when the caller is not an admin.
func (rc *RequestContext) AdminID() string {
	if rc == nil {
		return ""
	}
	return rc.adminID
}

// SetUserID records the caller identity. Returns false if already set.
func (rc *RequestContext) SetUserID(id string) bool {
	if rc.userID != "" || id == "" {
		return false
	}
	rc.userID = id
	return true
}

// SetAdminID records the admin identity. Returns false if already set.
func (rc *RequestContext) SetAdminID(id string) bool {
	if rc.adminID != "" || id == "" {
		return false
	}
	rc.adminID = id
	return true
}

// Elapsed returns the time since StartTime in fractional milliseconds.
func (rc *RequestContext) Elapsed() float64 {
	return float64(time.Since(rc.StartTime)) / float64(time.Millisecond)
}

// Context key types (unexported for encapsulation).
type (
	requestContextKey struct{}
	requestTimeKey    struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestContext = requestContextKey{}
	ContextKeyRequestTime    = requestTimeKey{}
)

// From retrieves the RequestContext from ctx, or nil outside a request.
func From(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if rc, ok := ctx.Value(ContextKeyRequestContext).(*RequestContext); ok {
		return rc
	}
	return nil
}

// With stores rc in ctx.
func With(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ContextKeyRequestContext, rc)
}

// RequestID returns the request ID from ctx, or SystemRequestID outside a request.
func RequestID(ctx context.Context) string {
	if rc := From(ctx); rc != nil && rc.RequestID != "" {
		return rc.RequestID
	}
	return SystemRequestID
}

// ClientIP returns the client IP from ctx, or "unknown".
func ClientIP(ctx context.Context) string {
	if rc := From(ctx); rc != nil && rc.IP != "" {
		return rc.IP
	}
	return "unknown"
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like the sweeper and tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
