package window

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"quiz/internal/ratelimit/models"
)

// PostgresStore persists fixed-window counters in PostgreSQL.
// The reset-or-increment decision runs inside one upsert so concurrent hits
// on the same key serialize on the row lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed window store.
// The rate_limit_windows table is created by postgres.Migrate.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (models.Entry, error) {
	query := `
		INSERT INTO rate_limit_windows (key, count, window_start_ms)
		VALUES ($1, 1, $2)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN $2 - rate_limit_windows.window_start_ms > $3 THEN 1
				ELSE rate_limit_windows.count + 1
			END,
			window_start_ms = CASE
				WHEN $2 - rate_limit_windows.window_start_ms > $3 THEN $2
				ELSE rate_limit_windows.window_start_ms
			END
		RETURNING count, window_start_ms
	`
	var (
		count   int
		startMs int64
	)
	err := s.db.QueryRowContext(ctx, query, key, now.UnixMilli(), window.Milliseconds()).Scan(&count, &startMs)
	if err != nil {
		return models.Entry{}, fmt.Errorf("postgres window hit: %w", err)
	}
	return models.Entry{Count: count, WindowStart: time.UnixMilli(startMs)}, nil
}

func (s *PostgresStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_windows WHERE window_start_ms < $1`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("postgres window sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres window sweep rows: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_windows WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres window reset: %w", err)
	}
	return nil
}
