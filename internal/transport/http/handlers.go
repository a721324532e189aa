package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"quiz/internal/audit"
	authservice "quiz/internal/auth/service"
	"quiz/internal/platform/metrics"
	ratelimitmodels "quiz/internal/ratelimit/models"
	dErrors "quiz/pkg/domain-errors"
	"quiz/pkg/platform/httputil"
	authmw "quiz/pkg/platform/middleware/auth"
	"quiz/pkg/requestcontext"
)

// AuthService signs admins in and describes callers.
type AuthService interface {
	Login(ctx context.Context, password string) (*authservice.LoginResult, error)
	Me(rc *requestcontext.RequestContext) authservice.Identity
}

// MetricsStore is the in-process request metrics.
type MetricsStore interface {
	Export() metrics.Export
	Reset()
}

// AuditRecorder records admin actions.
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event)
	Dropped() int64
}

// AuditHistory lists past admin actions.
type AuditHistory interface {
	ListByAdmin(ctx context.Context, adminID string, limit int) ([]audit.Event, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler is the thin HTTP layer over the auth service, metrics and audit trail.
type Handler struct {
	auth         AuthService
	metrics      MetricsStore
	audit        AuditRecorder
	history      AuditHistory
	rateLimit    ratelimitmodels.Config
	checks       []HealthCheck
	secureCookie bool
	logger       *slog.Logger
}

type HandlerOption func(*Handler)

func WithHealthChecks(checks ...HealthCheck) HandlerOption {
	return func(h *Handler) {
		h.checks = append(h.checks, checks...)
	}
}

// WithSecureCookie marks the admin cookie Secure.
func WithSecureCookie(secure bool) HandlerOption {
	return func(h *Handler) {
		h.secureCookie = secure
	}
}

// WithAuditHistory adds the admin's recent actions to the console summary.
func WithAuditHistory(history AuditHistory) HandlerOption {
	return func(h *Handler) {
		h.history = history
	}
}

func WithRateLimitConfig(cfg ratelimitmodels.Config) HandlerOption {
	return func(h *Handler) {
		h.rateLimit = cfg
	}
}

func NewHandler(auth AuthService, metrics MetricsStore, audit AuditRecorder, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		auth:      auth,
		metrics:   metrics,
		audit:     audit,
		rateLimit: ratelimitmodels.DefaultConfig(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type loginRequest struct {
	Password string `json:"password"`
}

// HandleLogin handles POST /api/v1/auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return err
	}

	result, err := h.auth.Login(r.Context(), req.Password)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authmw.AdminCookie,
		Value:    result.Token,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteSuccess(w, rc.RequestID, result)
	return nil
}

// HandleMe handles GET /api/v1/auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	if err := authmw.RequireAuth(rc); err != nil {
		return err
	}
	httputil.WriteSuccess(w, rc.RequestID, h.auth.Me(rc))
	return nil
}

// HandleMetrics handles GET /api/metrics. The export is written bare, not
// inside the success envelope, so dashboards can read it directly.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	httputil.WriteJSON(w, http.StatusOK, h.metrics.Export())
	return nil
}

// HandleMetricsReset handles POST /api/metrics/reset.
func (h *Handler) HandleMetricsReset(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	if err := authmw.RequireAdmin(rc); err != nil {
		return err
	}

	h.metrics.Reset()
	h.audit.Record(r.Context(), audit.Event{
		AdminID:      rc.AdminID(),
		Action:       audit.ActionDelete,
		ResourceType: "metrics",
		ResourceID:   "all",
		Outcome:      audit.OutcomeSuccess,
	})

	httputil.WriteSuccess(w, rc.RequestID, map[string]bool{"reset": true})
	return nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	failed := map[string]any{}
	for _, c := range h.checks {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(h.checks))
		}
		if err := c.Check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "check", c.Name, "error", err)
			resp.Checks[c.Name] = "unavailable"
			failed[c.Name] = "unavailable"
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	if len(failed) > 0 {
		return dErrors.New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service Unavailable", failed)
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
	return nil
}

type adminSummary struct {
	AdminID   string         `json:"adminId"`
	Metrics   metrics.Export `json:"metrics"`
	RateLimit struct {
		WindowMs    int64 `json:"windowMs"`
		MaxRequests int   `json:"maxRequests"`
	} `json:"rateLimit"`
	AuditDropped int64         `json:"auditDropped"`
	RecentAudit  []audit.Event `json:"recentAudit,omitempty"`
}

const recentAuditLimit = 20

// HandleAdminConsole handles GET /admin. Admin identity comes from the page
// gate (cookie or bearer) or, failing that, the dispatcher's bearer check.
func (h *Handler) HandleAdminConsole(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	adminID, ok := authmw.AdminSession(r.Context())
	if !ok {
		if err := authmw.RequireAdmin(rc); err != nil {
			return err
		}
		adminID = rc.AdminID()
	}

	summary := adminSummary{
		AdminID:      adminID,
		Metrics:      h.metrics.Export(),
		AuditDropped: h.audit.Dropped(),
	}
	summary.RateLimit.WindowMs = h.rateLimit.Window.Milliseconds()
	summary.RateLimit.MaxRequests = h.rateLimit.MaxRequests

	if h.history != nil {
		events, err := h.history.ListByAdmin(r.Context(), adminID, recentAuditLimit)
		if err != nil {
			// The console still renders without history.
			h.logger.WarnContext(r.Context(), "failed to load audit history",
				"error", err,
				"request_id", rc.RequestID,
			)
		}
		summary.RecentAudit = events
	}

	httputil.WriteSuccess(w, rc.RequestID, summary)
	return nil
}

// HandleAdminLogin handles GET /admin/login, telling the console where to sign in.
func (h *Handler) HandleAdminLogin(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	httputil.WriteSuccess(w, rc.RequestID, map[string]string{
		"loginEndpoint": "/api/v1/auth/login",
		"next":          safeNext(r.URL.Query().Get("next")),
	})
	return nil
}

// safeNext keeps next only when it is a path on this host. "//host" and
// "/\host" are read by browsers as other origins.
func safeNext(next string) string {
	const fallback = adminPrefix
	if next == "" || next[0] != '/' {
		return fallback
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return fallback
	}
	if strings.ContainsFunc(next, unicode.IsControl) {
		return fallback
	}
	return next
}

func notFound(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	return dErrors.NotFound("Not Found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, rc *requestcontext.RequestContext) error {
	return dErrors.New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method Not Allowed", nil)
}
