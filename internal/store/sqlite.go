// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides binding, command log, and audit persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
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

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS bindings (
			binding_id      TEXT PRIMARY KEY,
			channel         TEXT NOT NULL,
			channel_user_id TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			tenant_id       TEXT,
			status          TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			bound_at        TEXT,
			revoked_at      TEXT,
			revoke_reason   TEXT,

			CHECK (status IN ('pending', 'active', 'revoked'))
		);

		CREATE INDEX IF NOT EXISTS idx_bindings_channel_user
			ON bindings(channel, channel_user_id);
		CREATE INDEX IF NOT EXISTS idx_bindings_status ON bindings(status);

		CREATE TABLE IF NOT EXISTS command_log (
			audit_id        TEXT PRIMARY KEY,
			envelope_id     TEXT NOT NULL,
			channel         TEXT NOT NULL,
			channel_user_id TEXT NOT NULL,
			user_id         TEXT,
			command         TEXT NOT NULL,
			project_id      TEXT,
			success         INTEGER NOT NULL,
			filtered        INTEGER NOT NULL,
			classification  TEXT,
			elapsed_ms      INTEGER NOT NULL,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_command_log_created ON command_log(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_command_log_user ON command_log(user_id);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id   TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			actor      TEXT NOT NULL,
			action     TEXT NOT NULL,
			project_id TEXT,
			detail_json TEXT,
			ts         TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor);

		CREATE TABLE IF NOT EXISTS directory_users (
			user_id   TEXT PRIMARY KEY,
			role      TEXT NOT NULL,
			tenant_id TEXT,
			active    INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS tenants (
			tenant_id TEXT PRIMARY KEY,
			active    INTEGER NOT NULL DEFAULT 1
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetDirectoryUser retrieves an identity directory row by internal user id.
// Returns ErrNotFound if the user is not provisioned.
func (s *SQLiteStore) GetDirectoryUser(ctx context.Context, userID string) (*DirectoryUser, error) {
	query := `SELECT user_id, role, tenant_id, active FROM directory_users WHERE user_id = ?`

	var u DirectoryUser
	var tenantID sql.NullString
	var active int

	err := s.db.QueryRowContext(ctx, query, userID).Scan(&u.UserID, &u.Role, &tenantID, &active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying directory user: %w", err)
	}

	if tenantID.Valid {
		u.TenantID = tenantID.String
	}
	u.Active = active != 0
	return &u, nil
}

// PutDirectoryUser upserts an identity directory row. Provisioning normally
// happens out of band; this exists for bootstrap and tests.
func (s *SQLiteStore) PutDirectoryUser(ctx context.Context, u *DirectoryUser) error {
	query := `
		INSERT OR REPLACE INTO directory_users (user_id, role, tenant_id, active)
		VALUES (?, ?, ?, ?)
	`

	var tenantID any
	if u.TenantID != "" {
		tenantID = u.TenantID
	}
	active := 0
	if u.Active {
		active = 1
	}

	if _, err := s.db.ExecContext(ctx, query, u.UserID, u.Role, tenantID, active); err != nil {
		return fmt.Errorf("upserting directory user: %w", err)
	}

	s.logger.Debug("upserted directory user", "user_id", u.UserID, "role", u.Role)
	return nil
}

// TenantActive reports whether a tenant exists and is active.
// An empty tenant id is treated as the single-tenant default and is active.
func (s *SQLiteStore) TenantActive(ctx context.Context, tenantID string) (bool, error) {
	if tenantID == "" {
		return true, nil
	}

	var active int
	err := s.db.QueryRowContext(ctx, `SELECT active FROM tenants WHERE tenant_id = ?`, tenantID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying tenant: %w", err)
	}
	return active != 0, nil
}

// PutTenant upserts a tenant row. Exists for bootstrap and tests.
func (s *SQLiteStore) PutTenant(ctx context.Context, tenantID string, active bool) error {
	a := 0
	if active {
		a = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tenants (tenant_id, active) VALUES (?, ?)`, tenantID, a); err != nil {
		return fmt.Errorf("upserting tenant: %w", err)
	}
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
