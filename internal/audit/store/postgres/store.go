// Package postgres persists admin audit events in the admin_audit_log table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"quiz/internal/audit"
)

// Store implements audit.Sink.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Name() string { return "postgres" }

// Append inserts event. Replays of the same event ID are ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO admin_audit_log (
			id, admin_id, action, resource_type, resource_id, outcome, request_id, ip, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.AdminID,
		string(event.Action),
		event.ResourceType,
		event.ResourceID,
		string(event.Outcome),
		event.RequestID,
		event.IP,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByAdmin returns the most recent events for adminID, newest first.
func (s *Store) ListByAdmin(ctx context.Context, adminID string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, admin_id, action, resource_type, resource_id, outcome, request_id, ip, occurred_at
		FROM admin_audit_log
		WHERE admin_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, adminID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e       audit.Event
			action  string
			outcome string
		)
		if err := rows.Scan(&e.ID, &e.AdminID, &action, &e.ResourceType, &e.ResourceID, &outcome, &e.RequestID, &e.IP, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = audit.Action(action)
		e.Outcome = audit.Outcome(outcome)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
