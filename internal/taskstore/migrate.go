package taskstore

import (
	"database/sql"
	"fmt"
	"strings"
)

// CurrentSchemaVersion is the schema version this build expects.
// Migration from v1 adds the event_type column.
const CurrentSchemaVersion = 2

const baseSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	account TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	schedule_expression TEXT,
	condition_script TEXT,
	condition_interval INTEGER NOT NULL DEFAULT 10,
	is_active INTEGER NOT NULL DEFAULT 1,
	pre_task_ids TEXT NOT NULL DEFAULT '[]',
	script_body TEXT NOT NULL,
	last_run_at TEXT,
	next_run_at TEXT,
	last_condition_check_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	trigger_reason TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	log TEXT
);

CREATE INDEX IF NOT EXISTS idx_results_task_id ON results(task_id);
CREATE INDEX IF NOT EXISTS idx_tasks_next_run_at ON tasks(next_run_at);
`

const templatesSchema = `
CREATE TABLE IF NOT EXISTS templates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	script_body TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// migrate brings the schema up to CurrentSchemaVersion. Idempotent:
// duplicate-column errors from a concurrent or repeated migration
// attempt are tolerated.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(baseSchema); err != nil {
		return fmt.Errorf("applying base schema: %w", err)
	}

	version, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version < 2 {
		if _, err := db.Exec(`ALTER TABLE tasks ADD COLUMN event_type TEXT NOT NULL DEFAULT 'script'`); err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("migrating to v2 (event_type): %w", err)
		}
		if err := setVersion(db, 2); err != nil {
			return err
		}
	}

	// Defensive: the templates table must exist post-migration
	// regardless of initial version, for installations that predate
	// it entirely.
	if _, err := db.Exec(templatesSchema); err != nil {
		return fmt.Errorf("ensuring templates table: %w", err)
	}

	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	row := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			if _, insErr := db.Exec(`INSERT INTO schema_version (version) VALUES (1)`); insErr != nil {
				return 0, insErr
			}
			return 1, nil
		}
		return 0, err
	}
	return v, nil
}

func setVersion(db *sql.DB, v int) error {
	_, err := db.Exec(`UPDATE schema_version SET version = ?`, v)
	return err
}

// isDuplicateColumnError tolerates SQLite's "duplicate column name"
// error returned when a migration step has already been applied.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column name")
}
