// Package service implements admin sign-in on top of the token codecs.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"quiz/internal/auth/token"
	dErrors "quiz/pkg/domain-errors"
	"quiz/pkg/requestcontext"
)

// AdminSubject is the subject of tokens issued by Login.
const AdminSubject = "admin"

type PasswordVerifier interface {
	Verify(candidate string) bool
}

type TokenIssuer interface {
	Issue(subject string, role token.Role, now time.Time) (string, error)
}

// LoginResult is returned to the client after a successful sign-in.
type LoginResult struct {
	Token     string     `json:"token"`
	Role      token.Role `json:"role"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Identity describes the caller of an authenticated request.
type Identity struct {
	UserID  string `json:"userId"`
	AdminID string `json:"adminId,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
}

type Service struct {
	issuer   TokenIssuer
	password PasswordVerifier
	ttl      time.Duration
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTTL must match the TTL the issuer was built with; it is only used to
// report ExpiresAt.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(issuer TokenIssuer, password PasswordVerifier, opts ...Option) *Service {
	s := &Service{
		issuer:   issuer,
		password: password,
		ttl:      token.DefaultTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login exchanges the admin password for an admin token.
func (s *Service) Login(ctx context.Context, password string) (*LoginResult, error) {
	if strings.TrimSpace(password) == "" {
		return nil, dErrors.Validation("Password required", map[string]any{"field": "password"})
	}
	if !s.password.Verify(password) {
		s.logger.WarnContext(ctx, "admin login failed",
			"ip", requestcontext.ClientIP(ctx),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Auth("Invalid password")
	}

	now := requestcontext.Now(ctx)
	raw, err := s.issuer.Issue(AdminSubject, token.RoleAdmin, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.KindGeneric, dErrors.MessageInternal)
	}

	s.logger.InfoContext(ctx, "admin signed in",
		"ip", requestcontext.ClientIP(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &LoginResult{
		Token:     raw,
		Role:      token.RoleAdmin,
		ExpiresAt: now.Add(s.ttl).UTC(),
	}, nil
}

// Me describes the identity attached to rc.
func (s *Service) Me(rc *requestcontext.RequestContext) Identity {
	return Identity{
		UserID:  rc.UserID(),
		AdminID: rc.AdminID(),
		IsAdmin: rc.AdminID() != "",
	}
}
