package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"authchain/internal/audit"
	txcontext "authchain/pkg/platform/tx"
)

// Store appends audit events to chain_audit_events.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	levels := event.Levels
	if levels == nil {
		levels = []string{}
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO chain_audit_events (
			id, category, timestamp, state_id, user_id, module_id, action, levels, reason, client_ip, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), string(category), event.Timestamp, event.StateID, event.UserID,
		event.ModuleID, event.Action, pq.Array(levels), event.Reason, event.ClientIP, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByState(ctx context.Context, stateID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, timestamp, state_id, user_id, module_id, action, levels, reason, client_ip, request_id
		FROM chain_audit_events
		WHERE state_id = $1
		ORDER BY timestamp, id`, stateID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
		)
		if err := rows.Scan(&category, &e.Timestamp, &e.StateID, &e.UserID, &e.ModuleID,
			&e.Action, pq.Array(&e.Levels), &e.Reason, &e.ClientIP, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
