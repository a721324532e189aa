package models

import (
	"math"
	"time"
)

// Defaults applied when configuration leaves the window or the limit unset.
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 100
)

// Config is the fixed-window policy applied to every client key.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultConfig returns a one-minute window admitting 100 requests.
func DefaultConfig() Config {
	return Config{Window: DefaultWindow, MaxRequests: DefaultMaxRequests}
}

// Normalize fills zero or negative fields with defaults.
func (c Config) Normalize() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	return c
}

// Entry is the counter for one key within its current window.
type Entry struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Expired reports whether the window that started at WindowStart has elapsed at now.
// A window is still open at exactly WindowStart+window.
func (e Entry) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(e.WindowStart) > window
}

// Advance applies one hit at now: a missing or expired entry restarts the
// window with a count of one, otherwise the count is incremented.
func Advance(e *Entry, now time.Time, window time.Duration) Entry {
	if e == nil || e.Expired(now, window) {
		return Entry{Count: 1, WindowStart: now}
	}
	return Entry{Count: e.Count + 1, WindowStart: e.WindowStart}
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// Evaluate decides whether the post-increment entry is within cfg.
func Evaluate(e Entry, now time.Time, cfg Config) *RateLimitResult {
	resetAt := e.WindowStart.Add(cfg.Window)
	result := &RateLimitResult{
		Allowed:   e.Count <= cfg.MaxRequests,
		Limit:     cfg.MaxRequests,
		Remaining: max(cfg.MaxRequests-e.Count, 0),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = RetryAfterSeconds(resetAt.Sub(now))
	}
	return result
}

// RetryAfterSeconds rounds the remaining window up to whole seconds, never below one.
func RetryAfterSeconds(remaining time.Duration) int {
	secs := int(math.Ceil(remaining.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
