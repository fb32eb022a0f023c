package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// dialect holds the statements that differ between backends
type dialect struct {
	name string
	// serialPK is the column definition of an auto-increment primary key
	serialPK string
	// columnExists must return a row when table $1 has column $2
	columnExists string
}

var dialects = map[string]dialect{
	DriverPostgres: {
		name:         DriverPostgres,
		serialPK:     "BIGSERIAL PRIMARY KEY",
		columnExists: `SELECT 1 FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
	},
	DriverSQLite: {
		name:         DriverSQLite,
		serialPK:     "INTEGER PRIMARY KEY AUTOINCREMENT",
		columnExists: `SELECT 1 FROM pragma_table_info($1) WHERE name = $2`,
	},
}

// DB wraps the database connection
type DB struct {
	conn    *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// Open connects to driver/dsn, creates missing tables and applies
// additive migrations.
func Open(driver, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection serializes writers and keeps ":memory:" databases alive.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dialect: d, logger: logger}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.migrateSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the backend name
func (db *DB) Driver() string {
	return db.dialect.name
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// createTables creates the necessary tables
func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT PRIMARY KEY,
			staff_role_id TEXT NOT NULL DEFAULT '',
			onduty_role_id TEXT NOT NULL DEFAULT '',
			log_channel_id TEXT NOT NULL DEFAULT '',
			auto_out_hours INTEGER NOT NULL DEFAULT 6
		)`,
		`CREATE TABLE IF NOT EXISTS active_duty (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			start_ts BIGINT NOT NULL,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS duty_sessions (
			id ` + db.dialect.serialPK + `,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			start_ts BIGINT NOT NULL,
			end_ts BIGINT NOT NULL,
			duration_sec BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS duty_sessions_guild_end_idx ON duty_sessions (guild_id, end_ts)`,
		`CREATE TABLE IF NOT EXISTS msg_daily (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			day_key TEXT NOT NULL,
			msg_count BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (guild_id, user_id, day_key)
		)`,
		`CREATE TABLE IF NOT EXISTS voice_active (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			join_ts BIGINT NOT NULL,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS voice_daily (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			day_key TEXT NOT NULL,
			voice_sec BIGINT NOT NULL DEFAULT 0,
			joins BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (guild_id, user_id, day_key)
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// column is an additive schema change
type column struct {
	table, name, definition string
}

// migrations only ever add columns with defaults. Columns that appeared
// after the first release of each table are listed here so older
// databases catch up.
var migrations = []column{
	{"guild_settings", "weekly_channel_id", "TEXT NOT NULL DEFAULT ''"},
	{"guild_settings", "staff_week_role_id", "TEXT NOT NULL DEFAULT ''"},
	{"guild_settings", "alert_channel_id", "TEXT NOT NULL DEFAULT ''"},
	{"guild_settings", "auto_out_hours", "INTEGER NOT NULL DEFAULT 6"},
	{"guild_settings", "last_weekly_key", "TEXT NOT NULL DEFAULT ''"},
	{"active_duty", "shift", "TEXT NOT NULL DEFAULT 'Support'"},
	{"duty_sessions", "shift", "TEXT NOT NULL DEFAULT 'Support'"},
}

// migrateSchema adds missing columns, checking before each ALTER
func (db *DB) migrateSchema() error {
	for _, c := range migrations {
		exists, err := db.hasColumn(c.table, c.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.name, c.definition)
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", c.table, c.name, err)
		}
		db.logger.Info("Added column", slog.String("table", c.table), slog.String("column", c.name))
	}
	return nil
}

func (db *DB) hasColumn(table, name string) (bool, error) {
	var one int
	err := db.conn.QueryRow(db.rebind(db.dialect.columnExists), table, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect column %s.%s: %w", table, name, err)
	}
	return true, nil
}

// rebind rewrites $N placeholders as ?N for SQLite, where $N would be a
// named parameter numbered by first appearance instead of by N.
func (db *DB) rebind(query string) string {
	if db.dialect.name != DriverSQLite || !strings.Contains(query, "$") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
