package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "quiz/pkg/domain-errors"
)

// Claims represents the JWT claims for signed tokens.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTCodec signs tokens with HS256.
type JWTCodec struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewJWTCodec(signingKey, issuer string, ttl time.Duration) (*JWTCodec, error) {
	if signingKey == "" {
		return nil, errors.New("jwt signing key is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JWTCodec{signingKey: []byte(signingKey), issuer: issuer, ttl: ttl}, nil
}

func (c *JWTCodec) Issue(subject string, role Role, now time.Time) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.issuer,
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(c.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (c *JWTCodec) Verify(raw string, now time.Time) (*Payload, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.signingKey, nil
	},
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.KindAuth, Invalid)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Role == "" {
		return nil, dErrors.Wrap(errors.New("invalid token claims"), dErrors.KindAuth, Invalid)
	}

	p := &Payload{Subject: claims.Subject, Role: claims.Role}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return p, nil
}
