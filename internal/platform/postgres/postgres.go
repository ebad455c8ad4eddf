// Package postgres opens the database/sql pool used by the Postgres stores.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"authchain/internal/platform/config"
)

// Open connects to Postgres through the pgx stdlib driver and pings it.
// Returns nil when no DSN is configured.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Schema creates the tables used by the state, user and audit stores.
const Schema = `
CREATE TABLE IF NOT EXISTS chain_states (
	id               UUID PRIMARY KEY,
	version          BIGINT NOT NULL,
	requested_levels TEXT[] NOT NULL DEFAULT '{}',
	payload          JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS chain_states_expires_at_idx ON chain_states (expires_at);

CREATE TABLE IF NOT EXISTS chain_users (
	id                 UUID PRIMARY KEY,
	email              TEXT UNIQUE,
	username           TEXT UNIQUE,
	password_hash      TEXT NOT NULL DEFAULT '',
	preferred_language TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS chain_audit_events (
	id          UUID PRIMARY KEY,
	category    TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	state_id    TEXT NOT NULL DEFAULT '',
	user_id     TEXT NOT NULL DEFAULT '',
	module_id   TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	levels      TEXT[] NOT NULL DEFAULT '{}',
	reason      TEXT NOT NULL DEFAULT '',
	client_ip   TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS chain_audit_events_state_idx ON chain_audit_events (state_id);
`

// Migrate applies Schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
