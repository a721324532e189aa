package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	dErrors "quiz/pkg/domain-errors"
)

// LegacyCodec encodes the payload as unsigned base64 JSON.
type LegacyCodec struct {
	ttl time.Duration
}

func NewLegacyCodec(ttl time.Duration) *LegacyCodec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LegacyCodec{ttl: ttl}
}

func (c *LegacyCodec) Issue(subject string, role Role, now time.Time) (string, error) {
	raw, err := json.Marshal(Payload{
		Subject:   subject,
		Role:      role,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(c.ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (c *LegacyCodec) Verify(raw string, now time.Time) (*Payload, error) {
	decoded, err := decodeBase64(strings.TrimSpace(raw))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.KindAuth, Invalid)
	}

	var p Payload
	if err := json.Unmarshal(decoded, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.KindAuth, Invalid)
	}
	if p.Role == "" {
		return nil, dErrors.Wrap(errors.New("token has no role"), dErrors.KindAuth, Invalid)
	}
	if p.Expired(now) {
		return nil, dErrors.Wrap(errors.New("token expired"), dErrors.KindAuth, Invalid)
	}
	return &p, nil
}

// decodeBase64 accepts standard and URL alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty token")
	}
	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
