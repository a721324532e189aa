package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz/internal/auth/token"
	dErrors "quiz/pkg/domain-errors"
	"quiz/pkg/requestcontext"
)

// AdminCookie holds the admin console token for browser navigation.
const AdminCookie = "adminToken"

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(raw string, now time.Time) (*token.Payload, error)
}

// BearerToken returns the token from the Authorization header, if any.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	const bearerPrefix = "Bearer "
	raw := authHeader
	if after, ok := strings.CutPrefix(authHeader, bearerPrefix); ok {
		raw = after
	}
	return strings.TrimSpace(raw), true
}

// Attach decodes the bearer token, if present, into rc's identity fields.
// No header leaves rc anonymous; a present but invalid token is an Auth error.
func Attach(r *http.Request, rc *requestcontext.RequestContext, verifier TokenVerifier) error {
	raw, ok := BearerToken(r)
	if !ok {
		return nil
	}
	payload, err := verifier.Verify(raw, requestcontext.Now(r.Context()))
	if err != nil {
		return err
	}
	rc.SetUserID(payload.Identity())
	if payload.IsAdmin() {
		rc.SetAdminID(payload.Identity())
	}
	return nil
}

// Authenticator attaches caller identity for the dispatcher.
type Authenticator struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

func NewAuthenticator(verifier TokenVerifier, logger *slog.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, logger: logger}
}

// Identify implements dispatch.Identifier.
func (a *Authenticator) Identify(r *http.Request, rc *requestcontext.RequestContext) error {
	err := Attach(r, rc, a.verifier)
	if err != nil {
		a.logger.WarnContext(r.Context(), "unauthorized access - invalid token",
			"error", err,
			"request_id", rc.RequestID,
		)
	}
	return err
}

// RequireAuth fails unless the request carries a user identity.
func RequireAuth(rc *requestcontext.RequestContext) error {
	if rc.UserID() == "" {
		return dErrors.Auth("Authentication required")
	}
	return nil
}

// RequireAdmin fails unless the request carries an admin identity.
func RequireAdmin(rc *requestcontext.RequestContext) error {
	if rc.AdminID() == "" {
		return dErrors.Auth("Admin authentication required")
	}
	return nil
}

type adminSessionKey struct{}

// AdminSession returns the admin identity AdminPages verified for this request.
func AdminSession(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(adminSessionKey{}).(string)
	return id, ok && id != ""
}

// AdminPages guards the browser admin console. Requests under prefix, other
// than loginPath, need an admin token in the adminToken cookie or the
// Authorization header; the cookie is tried first. Anything else is
// redirected to loginPath.
func AdminPages(verifier TokenVerifier, prefix, loginPath string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			guarded := path == prefix || strings.HasPrefix(path, prefix+"/")
			if !guarded || path == loginPath {
				next.ServeHTTP(w, r)
				return
			}

			// A stale cookie must not hide a valid bearer token.
			var candidates []string
			if c, err := r.Cookie(AdminCookie); err == nil && c.Value != "" {
				candidates = append(candidates, c.Value)
			}
			if bearer, ok := BearerToken(r); ok && bearer != "" {
				candidates = append(candidates, bearer)
			}

			now := requestcontext.Now(r.Context())
			for _, raw := range candidates {
				payload, err := verifier.Verify(raw, now)
				if err == nil && payload.IsAdmin() {
					ctx := context.WithValue(r.Context(), adminSessionKey{}, payload.Identity())
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				logger.WarnContext(r.Context(), "admin page access denied", "path", path, "error", err)
			}

			target := loginPath + "?next=" + url.QueryEscape(path)
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}
