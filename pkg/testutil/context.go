package testutil

import (
	"net/http"
	"time"

	"quiz/pkg/requestcontext"
)

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithClientIP makes the request appear to come from ip.
func WithClientIP(req *http.Request, ip string) *http.Request {
	req.Header.Set("X-Forwarded-For", ip)
	return req
}

// WithRequestTime pins the time the rate limiter and token checks see.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
