package db

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS config (
	id INTEGER PRIMARY KEY CHECK(id = 1),
	connection_id TEXT NOT NULL,
	port_id TEXT NOT NULL,
	update_period INTEGER NOT NULL CHECK(update_period > 0),
	remote_denom TEXT NOT NULL,
	owner TEXT NOT NULL CHECK(length(owner) > 0),
	fees_json TEXT NOT NULL DEFAULT '{}',
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
	id INTEGER PRIMARY KEY CHECK(id = 1),
	status TEXT NOT NULL CHECK(status IN ('idle','awaiting_ack','timed_out','needs_resync')),
	snapshot_height INTEGER NOT NULL DEFAULT 0,
	snapshot_at TEXT,
	ica_status TEXT NOT NULL DEFAULT 'none' CHECK(ica_status IN ('none','in_progress','registered','closed')),
	ica_address TEXT NOT NULL DEFAULT '',
	channel_id TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_delegations (
	validator TEXT PRIMARY KEY,
	amount TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transfers (
	submit_order INTEGER PRIMARY KEY AUTOINCREMENT,
	sequence INTEGER NOT NULL UNIQUE CHECK(sequence > 0),
	channel_id TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('delegate','undelegate','redeem','transfer')),
	target TEXT NOT NULL,
	amount TEXT NOT NULL,
	denom TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending','acknowledged','timed_out')),
	submitted_at TEXT NOT NULL,
	timeout_at TEXT NOT NULL,
	resolved_at TEXT,
	reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS transfers_pending
ON transfers(submit_order)
WHERE status = 'pending';

CREATE TRIGGER IF NOT EXISTS transfers_terminal_immutable
BEFORE UPDATE ON transfers
WHEN OLD.status != 'pending'
BEGIN
	SELECT RAISE(ABORT, 'transfer is terminal');
END;

CREATE TRIGGER IF NOT EXISTS transfers_append_only
BEFORE DELETE ON transfers
BEGIN
	SELECT RAISE(ABORT, 'transfers are append-only');
END;

CREATE TABLE IF NOT EXISTS channel_sequences (
	port_id TEXT PRIMARY KEY,
	last_sequence INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	packet_id TEXT PRIMARY KEY,
	sequence INTEGER NOT NULL UNIQUE,
	port_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	type_url TEXT NOT NULL,
	data BLOB NOT NULL,
	memo TEXT NOT NULL DEFAULT '',
	fees_json TEXT NOT NULL DEFAULT '{}',
	timeout_at TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_events (
	event_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	sequence INTEGER,
	detail TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
`,
		DownSQL: `
DROP TRIGGER IF EXISTS transfers_append_only;
DROP TRIGGER IF EXISTS transfers_terminal_immutable;
DROP TABLE IF EXISTS channel_events;
DROP TABLE IF EXISTS outbox;
DROP TABLE IF EXISTS channel_sequences;
DROP TABLE IF EXISTS transfers;
DROP TABLE IF EXISTS snapshot_delegations;
DROP TABLE IF EXISTS state;
DROP TABLE IF EXISTS config;
`,
	},
	{
		Version: 2,
		UpSQL: `
CREATE INDEX IF NOT EXISTS channel_events_created_at ON channel_events(created_at);
CREATE INDEX IF NOT EXISTS channel_events_sequence ON channel_events(sequence) WHERE sequence IS NOT NULL;
`,
		DownSQL: `
DROP INDEX IF EXISTS channel_events_sequence;
DROP INDEX IF EXISTS channel_events_created_at;
`,
	},
	{
		Version: 3,
		UpSQL: `
ALTER TABLE state ADD COLUMN snapshot_sequence INTEGER NOT NULL DEFAULT 0;
`,
		DownSQL: `
ALTER TABLE state DROP COLUMN snapshot_sequence;
`,
	},
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func RollbackAll(ctx context.Context, db *sql.DB) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rollback tx %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("rollback migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit rollback %d: %w", m.Version, err)
		}
	}
	return nil
}
