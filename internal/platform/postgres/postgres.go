package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to PostgreSQL through the pgx stdlib driver.
// Returns nil if the DSN is empty (PostgreSQL not configured).
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rate_limit_windows (
		key             TEXT PRIMARY KEY,
		count           INTEGER NOT NULL,
		window_start_ms BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS rate_limit_windows_start_idx ON rate_limit_windows (window_start_ms)`,
	`CREATE TABLE IF NOT EXISTS admin_audit_log (
		id            UUID PRIMARY KEY,
		admin_id      TEXT NOT NULL,
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id   TEXT NOT NULL,
		outcome       TEXT NOT NULL,
		request_id    TEXT NOT NULL,
		ip            TEXT NOT NULL,
		occurred_at   TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables used by the rate limit and audit stores.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
