package registry

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Open opens (creating if necessary) the SQLite database at path, puts it in
// WAL mode for concurrent readers alongside the writing daemon, and runs
// schema migration.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates every table the registry needs if absent, and adds columns
// introduced after the initial schema (the instances.pid column, added to
// carry the supervisor's last-known PID across restarts).
func Migrate(db *sqlx.DB) error {
	for _, stmt := range createTableStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	if err := addColumnIfMissing(db, "instances", "pid", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	return nil
}

// addColumnIfMissing runs an ALTER TABLE ADD COLUMN, tolerating the "duplicate
// column name" error SQLite raises when the column already exists — the only
// forward-compatible way to add a column idempotently without a separate
// migrations table.
func addColumnIfMissing(db *sqlx.DB, table, column, ddl string) error {
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl))
	if err == nil {
		return nil
	}
	// modernc.org/sqlite surfaces this as a generic error string; matching by
	// substring is the only portable option short of parsing the sqlite error
	// code out of the driver error.
	if containsDuplicateColumn(err.Error()) {
		return nil
	}
	return fmt.Errorf("add column %s.%s: %w", table, column, err)
}

func containsDuplicateColumn(msg string) bool {
	return len(msg) > 0 && (contains(msg, "duplicate column name") || contains(msg, "already exists"))
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		port INTEGER NOT NULL,
		config_path TEXT NOT NULL,
		workspace_dir TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_name_live ON instances(name) WHERE status != 'archived'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_port_live ON instances(port) WHERE status != 'archived'`,

	`CREATE TABLE IF NOT EXISTS aria_agents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		model TEXT,
		temperature REAL,
		system_prompt TEXT,
		tools TEXT NOT NULL DEFAULT '[]',
		thinking INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 0,
		timeout_seconds INTEGER NOT NULL DEFAULT 0,
		handler_code TEXT NOT NULL DEFAULT '',
		handler_hash TEXT NOT NULL DEFAULT '',
		sandbox_config TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_agents_tenant ON aria_agents(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS aria_tools (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		parameters_schema TEXT NOT NULL DEFAULT '{}',
		handler_code TEXT NOT NULL DEFAULT '',
		handler_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_tools_tenant ON aria_tools(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS aria_tasks (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		agent_id TEXT NOT NULL DEFAULT '',
		input TEXT NOT NULL DEFAULT '',
		run_status TEXT NOT NULL DEFAULT 'pending',
		result TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_tasks_tenant ON aria_tasks(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS aria_cron_functions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		schedule TEXT NOT NULL DEFAULT '',
		agent_id TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_cron_tenant ON aria_cron_functions(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS aria_memories (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		kind TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		embedding_ref TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_memories_tenant ON aria_memories(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS aria_pipelines (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		steps TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_pipelines_tenant ON aria_pipelines(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS aria_networks (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		slug TEXT NOT NULL DEFAULT '',
		driver TEXT NOT NULL DEFAULT 'bridge',
		subnet TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_networks_tenant ON aria_networks(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS aria_feeds (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		source_url TEXT NOT NULL DEFAULT '',
		poll_interval_seconds INTEGER NOT NULL DEFAULT 300,
		last_polled_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_feeds_tenant ON aria_feeds(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS aria_containers (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		instance_id TEXT NOT NULL DEFAULT '',
		network_id TEXT NOT NULL DEFAULT '',
		runtime_state TEXT NOT NULL DEFAULT 'unknown',
		last_stats TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_containers_tenant ON aria_containers(tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_aria_containers_network ON aria_containers(network_id)`,
}
