// Package token issues and verifies the bearer tokens that identify callers.
//
// Two formats exist. LegacyCodec produces the unsigned base64 JSON payload
// {role, iat, exp} that existing clients hold; it carries no integrity
// protection and anyone can forge one. JWTCodec signs the same claims with
// HS256 and is selected with TOKEN_FORMAT=jwt.
package token

import (
	"time"
)

// Role is the caller's privilege level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// DefaultTTL is how long issued tokens stay valid.
const DefaultTTL = 24 * time.Hour

// Invalid is the client-facing message for every verification failure.
const Invalid = "Invalid token"

// Payload is the decoded token. Times are unix seconds; zero ExpiresAt means no expiry.
type Payload struct {
	Subject   string `json:"sub,omitempty"`
	Role      Role   `json:"role"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// Identity is the caller ID: the subject, or the role for tokens issued without one.
func (p *Payload) Identity() string {
	if p.Subject != "" {
		return p.Subject
	}
	return string(p.Role)
}

// IsAdmin reports whether the token grants admin access.
func (p *Payload) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Expired reports whether the payload is past its expiry at now.
func (p *Payload) Expired(now time.Time) bool {
	return p.ExpiresAt != 0 && p.ExpiresAt < now.Unix()
}

// Codec issues and verifies tokens. Verify returns an Auth error for any
// malformed, forged or expired token.
type Codec interface {
	Issue(subject string, role Role, now time.Time) (string, error)
	Verify(raw string, now time.Time) (*Payload, error)
}
