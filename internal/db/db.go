// Package db provides database connection management and schema migrations.
// SQLite backs development and tests; hosted Postgres backs production.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DB wraps a sql.DB with driver awareness so repositories can write
// queries with ? placeholders regardless of backend.
type DB struct {
	*sql.DB
	driver string
}

// Open opens a database connection for the given driver and DSN and runs
// schema migrations.
func Open(driver, dsn string) (*DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{DB: sqlDB, driver: driver}

	if driver == DriverSQLite {
		// WAL mode for better concurrent access
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := runMigrations(d); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return d, nil
}

// Driver returns the driver name the connection was opened with.
func (d *DB) Driver() string {
	return d.driver
}

// Rebind converts ? placeholders to $1, $2, ... for PostgreSQL. SQLite
// queries pass through unchanged.
func (d *DB) Rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	n := 1
	var out strings.Builder
	for _, ch := range query {
		if ch == '?' {
			fmt.Fprintf(&out, "$%d", n)
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// runMigrations executes the database schema migrations.
func runMigrations(d *DB) error {
	timestampType := "DATETIME"
	if d.driver == DriverPostgres {
		timestampType = "TIMESTAMPTZ"
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email TEXT,
		username TEXT,
		assigned_agent_address TEXT,
		created_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT,
		goal TEXT,
		backstory TEXT,
		agent_tools TEXT,
		created_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS crews (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		created_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		agent_id TEXT,
		input TEXT NOT NULL,
		result TEXT,
		tokens BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at %[1]s NOT NULL,
		updated_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS steps (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		profile_id TEXT NOT NULL,
		agent_id TEXT,
		role TEXT NOT NULL,
		content TEXT,
		tool TEXT,
		tool_input TEXT,
		tool_output TEXT,
		thought TEXT,
		created_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		agent_id TEXT,
		thread_id TEXT NOT NULL,
		name TEXT NOT NULL,
		prompt TEXT NOT NULL,
		cron TEXT NOT NULL,
		is_scheduled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at %[1]s NOT NULL
	);

	CREATE TABLE IF NOT EXISTS telegram_users (
		id TEXT PRIMARY KEY,
		telegram_user_id TEXT NOT NULL,
		chat_id BIGINT NOT NULL,
		username TEXT,
		profile_id TEXT NOT NULL,
		registered BOOLEAN NOT NULL DEFAULT FALSE,
		created_at %[1]s NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_thread_id ON jobs(thread_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_profile_id ON jobs(profile_id);
	CREATE INDEX IF NOT EXISTS idx_steps_job_id ON steps(job_id);
	CREATE INDEX IF NOT EXISTS idx_threads_profile_id ON threads(profile_id);
	CREATE INDEX IF NOT EXISTS idx_telegram_users_profile_id ON telegram_users(profile_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_telegram_users_telegram_id ON telegram_users(telegram_user_id);
	`, timestampType)

	if _, err := d.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// NewTestDB creates a new in-memory SQLite database for testing. Each call
// returns a fresh database with migrations applied.
func NewTestDB() (*DB, error) {
	testDB, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	return testDB, nil
}
