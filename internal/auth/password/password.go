// Package password checks the admin console password.
package password

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier compares candidates against the configured admin password, which
// may be stored either in plain text or as a bcrypt hash.
type Verifier struct {
	expected []byte
	hashed   bool
}

func NewVerifier(configured string) *Verifier {
	return &Verifier{
		expected: []byte(configured),
		hashed:   isBcryptHash(configured),
	}
}

// Verify reports whether candidate matches. Empty candidates never match.
func (v *Verifier) Verify(candidate string) bool {
	if candidate == "" || len(v.expected) == 0 {
		return false
	}
	if v.hashed {
		return bcrypt.CompareHashAndPassword(v.expected, []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare(v.expected, []byte(candidate)) == 1
}

// Hash returns a bcrypt hash suitable for ADMIN_PASSWORD.
func Hash(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
