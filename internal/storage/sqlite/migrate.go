package sqlite

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version of the SQLite backend.
const SchemaVersion = 1

var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS habits (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		frequency TEXT NOT NULL,
		active_days TEXT NOT NULL DEFAULT '[]',
		trigger_time TEXT NULL,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		total_success_days INTEGER NOT NULL DEFAULT 0,
		total_failure_days INTEGER NOT NULL DEFAULT 0,
		is_archived INTEGER NOT NULL DEFAULT 0,
		is_shared_with_partner INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);`,
	`CREATE TABLE IF NOT EXISTS daily_logs (
		user_id TEXT NOT NULL,
		habit_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		marked_at TEXT NOT NULL,
		note TEXT NULL,
		PRIMARY KEY (user_id, habit_id, date),
		FOREIGN KEY (user_id, habit_id) REFERENCES habits (user_id, id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS list_items (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		habit_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		order_index INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id),
		FOREIGN KEY (user_id, habit_id) REFERENCES habits (user_id, id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_list_items_habit ON list_items (user_id, habit_id);`,
	`CREATE TABLE IF NOT EXISTS partnerships (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		partner_id TEXT NOT NULL DEFAULT '',
		invite_code TEXT NOT NULL UNIQUE,
		invite_expires_at TEXT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		accepted_at TEXT NULL,
		revoked_at TEXT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_partnerships_owner ON partnerships (owner_id);`,
	`CREATE INDEX IF NOT EXISTS idx_partnerships_partner ON partnerships (partner_id);`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		morning_reminder_time TEXT NULL,
		evening_reminder_time TEXT NULL,
		notifications_enabled INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		key_hash TEXT PRIMARY KEY,
		user_id TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		user_id TEXT PRIMARY KEY,
		token TEXT NOT NULL
	);`,
}

// Migrate ensures the schema exists and is at SchemaVersion.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaV1 {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: apply schema v1: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?);`, SchemaVersion); err != nil {
		return fmt.Errorf("migrate: record version: %w", err)
	}
	return tx.Commit()
}
