package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz/internal/ratelimit/models"
	"quiz/pkg/platform/sentinel"
)

// hitScript applies one fixed-window hit atomically.
// KEYS[1] = counter hash
// ARGV[1] = now (unix ms)
// ARGV[2] = window (ms)
// The hash expires 2x window after its window started, which doubles as the sweep.
var hitScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
	local count
	if (not start) or (now - start > window) then
		start = now
		count = 1
		redis.call('HSET', KEYS[1], 'start', start, 'count', 1)
	else
		count = redis.call('HINCRBY', KEYS[1], 'count', 1)
	end
	redis.call('PEXPIRE', KEYS[1], start + 2 * window - now)
	return {count, start}
`)

// RedisStore implements ports.WindowStore on Redis so every replica shares counters.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a window store backed by client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Hit resets or increments the counter for key in one script call.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return models.Entry{}, err
	}
	vals, err := hitScript.Run(ctx, s.client, []string{key}, now.UnixMilli(), window.Milliseconds()).Int64Slice()
	if err != nil {
		return models.Entry{}, fmt.Errorf("redis window hit: %w: %w", sentinel.ErrUnavailable, err)
	}
	if len(vals) != 2 {
		return models.Entry{}, fmt.Errorf("redis window hit: unexpected reply of %d values", len(vals))
	}
	return models.Entry{Count: int(vals[0]), WindowStart: time.UnixMilli(vals[1])}, nil
}

// Sweep is a no-op: Redis expires counters on its own.
func (s *RedisStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// Reset deletes the counter for key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis window reset: %w", err)
	}
	return nil
}
