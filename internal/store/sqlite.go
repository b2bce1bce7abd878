// ABOUTME: database/sql implementation of the Store interface for SQLite and MySQL
// ABOUTME: SQLite owns its full schema; MySQL expects the principal tables to exist

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL backend behind a SQLStore.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// SQLStore implements the Store interface on top of database/sql.
// Both supported drivers use ? placeholders, so queries are shared.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// Ensure SQLStore implements Store.
var _ Store = (*SQLStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// busy_timeout goes in the DSN so every pooled connection gets it:
	// background upgrades and request lookups share the file.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLStore{
		db:      db,
		dialect: DialectSQLite,
		logger:  logger,
	}

	if err := s.createSQLiteSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// NewMySQLStore connects to an existing MySQL database holding the
// admin_users, clients, client_users and user_roles tables.
// Only audit_log is created by the gateway.
func NewMySQLStore(ctx context.Context, dsn string, maxOpenConns int) (*SQLStore, error) {
	logger := slog.Default().With("component", "store")

	mcfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	mcfg.ParseTime = true
	if mcfg.Loc == nil {
		mcfg.Loc = time.UTC
	}

	connector, err := mysql.NewConnector(mcfg)
	if err != nil {
		return nil, fmt.Errorf("creating mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mysql at %s: %w", mcfg.Addr, err)
	}

	s := &SQLStore{
		db:      db,
		dialect: DialectMySQL,
		logger:  logger,
	}

	if _, err := db.ExecContext(ctx, mysqlAuditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit_log table: %w", err)
	}

	logger.Info("MySQL store initialized", "addr", mcfg.Addr, "database", mcfg.DBName)
	return s, nil
}

// createSQLiteSchema creates the database tables if they don't exist.
// Column names follow the production MySQL schema.
func (s *SQLStore) createSQLiteSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS admin_users (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			name      TEXT NOT NULL,
			email     TEXT NOT NULL UNIQUE,
			password  TEXT,
			roleName  TEXT NOT NULL DEFAULT 'admin',
			lastLogin TEXT
		);

		CREATE TABLE IF NOT EXISTS clients (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			companyName   TEXT NOT NULL,
			companyEmail  TEXT NOT NULL UNIQUE,
			adminPassword TEXT
		);

		CREATE TABLE IF NOT EXISTS user_roles (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id           INTEGER,
			role_name           TEXT NOT NULL,
			permissions_summary TEXT,
			FOREIGN KEY (client_id) REFERENCES clients(id)
		);

		CREATE TABLE IF NOT EXISTS client_users (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id  INTEGER NOT NULL,
			role_id    INTEGER,
			full_name  TEXT NOT NULL,
			email      TEXT NOT NULL,
			password   TEXT,
			status     TEXT NOT NULL DEFAULT 'Active',
			last_login TEXT,
			FOREIGN KEY (client_id) REFERENCES clients(id),
			FOREIGN KEY (role_id) REFERENCES user_roles(id)
		);

		CREATE INDEX IF NOT EXISTS idx_client_users_email ON client_users(email);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id       TEXT PRIMARY KEY,
			action         TEXT NOT NULL,
			principal_type TEXT,
			principal_id   INTEGER,
			email          TEXT,
			remote_addr    TEXT,
			ts             TEXT NOT NULL,
			detail_json    TEXT,

			CHECK (action IN ('login_succeeded', 'login_failed', 'credential_upgraded'))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_principal ON audit_log(principal_type, principal_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

const mysqlAuditSchema = `
	CREATE TABLE IF NOT EXISTS audit_log (
		audit_id       VARCHAR(36) PRIMARY KEY,
		action         VARCHAR(32) NOT NULL,
		principal_type VARCHAR(16),
		principal_id   BIGINT,
		email          VARCHAR(255),
		remote_addr    VARCHAR(64),
		ts             VARCHAR(32) NOT NULL,
		detail_json    TEXT,
		INDEX idx_audit_ts (ts),
		INDEX idx_audit_principal (principal_type, principal_id)
	)
`

// Dialect reports which backend this store talks to.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
