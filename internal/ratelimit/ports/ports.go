// Package ports defines shared interfaces for the ratelimit module.
package ports

import (
	"context"
	"time"

	"quiz/internal/ratelimit/models"
)

// WindowStore holds fixed-window counters keyed by client.
type WindowStore interface {
	// Hit applies one request to key at now and returns the post-increment entry.
	// Reset-or-increment is atomic per key.
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (models.Entry, error)

	// Sweep evicts entries whose window started before cutoff and returns how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}
