package requestlog

import (
	"database/sql"
	"errors"
	"fmt"
)

type migration struct {
	version int
	up      func(tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, up: migrateV1},
	{version: 2, up: migrateV2},
}

func migrateV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS requests (
			id                   TEXT PRIMARY KEY,
			account_id           TEXT NOT NULL,
			provider             TEXT NOT NULL,
			model                TEXT NOT NULL,
			conversation_part_id TEXT NOT NULL DEFAULT '',
			system               TEXT NOT NULL DEFAULT '',
			message_count        INTEGER NOT NULL DEFAULT 0,
			tools                TEXT NOT NULL DEFAULT '[]',
			tool_call_counter    INTEGER NOT NULL DEFAULT 0,
			content              TEXT NOT NULL DEFAULT '',
			input_tokens         INTEGER NOT NULL DEFAULT 0,
			output_tokens        INTEGER NOT NULL DEFAULT 0,
			total_tokens         INTEGER NOT NULL DEFAULT 0,
			cost_usd             REAL NOT NULL DEFAULT 0,
			started_at           TEXT NOT NULL,
			duration_ms          INTEGER NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("create requests table: %w", err)
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_requests_started_at ON requests (started_at)`); err != nil {
		return fmt.Errorf("create started_at index: %w", err)
	}
	return nil
}

func migrateV2(tx *sql.Tx) error {
	if _, err := tx.Exec(`ALTER TABLE requests ADD COLUMN error TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add error column: %w", err)
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("insert initial schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if err := m.up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update schema version to %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
