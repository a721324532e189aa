// Package httptransport mounts the quiz API on a chi router. Every route
// except the Prometheus scrape endpoint runs through the dispatcher.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	ratelimitmw "quiz/internal/ratelimit/middleware"
	"quiz/pkg/platform/dispatch"
	authmw "quiz/pkg/platform/middleware/auth"
	"quiz/pkg/platform/middleware/requesttime"
)

const (
	adminPrefix    = "/admin"
	adminLoginPath = "/admin/login"

	routeNotFound         = "NOT_FOUND"
	routeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// RouterDeps are the collaborators NewRouter wires together.
type RouterDeps struct {
	Dispatcher    *dispatch.Dispatcher
	Guard         *ratelimitmw.Guard
	Handler       *Handler
	AdminVerifier authmw.TokenVerifier
	// Prometheus serves /metrics; nil leaves the route unmounted.
	Prometheus http.Handler
	Logger     *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	d, h := deps.Dispatcher, deps.Handler
	limited := func(fn dispatch.HandlerFunc) http.Handler {
		return d.Wrap(deps.Guard.Wrap(fn))
	}

	r := chi.NewRouter()
	r.Use(requesttime.Middleware)
	r.Use(authmw.AdminPages(deps.AdminVerifier, adminPrefix, adminLoginPath, deps.Logger))

	// Unmatched paths are caller-controlled; one metrics key each keeps the
	// route set bounded.
	r.NotFound(d.WrapRoute(routeNotFound, notFound).ServeHTTP)
	r.MethodNotAllowed(d.WrapRoute(routeMethodNotAllowed, methodNotAllowed).ServeHTTP)

	r.Method(http.MethodGet, "/health", d.Wrap(h.HandleHealth))
	if deps.Prometheus != nil {
		r.Method(http.MethodGet, "/metrics", deps.Prometheus)
	}

	r.Route("/api", func(api chi.Router) {
		api.Method(http.MethodGet, "/metrics", limited(h.HandleMetrics))
		api.Method(http.MethodPost, "/metrics/reset", limited(h.HandleMetricsReset))

		api.Route("/v1/auth", func(auth chi.Router) {
			auth.Method(http.MethodPost, "/login", limited(h.HandleLogin))
			auth.Method(http.MethodGet, "/me", limited(h.HandleMe))
		})
	})

	r.Method(http.MethodGet, adminPrefix, d.Wrap(h.HandleAdminConsole))
	r.Method(http.MethodGet, adminLoginPath, d.Wrap(h.HandleAdminLogin))

	return r
}
