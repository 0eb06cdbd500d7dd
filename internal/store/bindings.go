// ABOUTME: Binding store methods for channel-identity-to-user mapping
// ABOUTME: Bindings map (channel, channel_user_id) to an internal user with a status lifecycle

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Binding errors.
var (
	ErrBindingNotFound = errors.New("binding not found")
	ErrBindingExists   = errors.New("active binding already exists for channel user")
)

const bindingColumns = `binding_id, channel, channel_user_id, user_id, tenant_id, status, created_at, bound_at, revoked_at, revoke_reason`

// CreateBinding inserts a new binding row.
// Returns ErrBindingExists if an active binding already exists for the same
// (channel, channel_user_id) pair.
func (s *SQLiteStore) CreateBinding(ctx context.Context, b *Binding) error {
	// Reject a second active binding up front. Revoked history rows for the
	// same key are fine; re-binding creates a new record.
	if b.Status == BindingStatusActive {
		existing, err := s.GetActiveBinding(ctx, b.Channel, b.ChannelUserID)
		if err != nil && !errors.Is(err, ErrBindingNotFound) {
			return err
		}
		if existing != nil {
			return ErrBindingExists
		}
	}

	query := `
		INSERT INTO bindings (` + bindingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		b.ID,
		b.Channel,
		b.ChannelUserID,
		b.UserID,
		nullString(b.TenantID),
		string(b.Status),
		b.CreatedAt.UTC().Format(time.RFC3339),
		nullTime(b.BoundAt),
		nullTime(b.RevokedAt),
		nullString(b.RevokeReason),
	)
	if err != nil {
		return fmt.Errorf("inserting binding: %w", err)
	}

	s.logger.Debug("created binding", "id", b.ID, "channel", b.Channel, "channel_user", b.ChannelUserID, "status", b.Status)
	return nil
}

// GetBindingByID retrieves a binding by its ID.
func (s *SQLiteStore) GetBindingByID(ctx context.Context, id string) (*Binding, error) {
	query := `SELECT ` + bindingColumns + ` FROM bindings WHERE binding_id = ?`
	return scanBinding(s.db.QueryRowContext(ctx, query, id))
}

// GetActiveBinding retrieves the active binding for a channel identity.
// Pending and revoked rows for the same key are invisible to this lookup.
func (s *SQLiteStore) GetActiveBinding(ctx context.Context, channel, channelUserID string) (*Binding, error) {
	query := `
		SELECT ` + bindingColumns + `
		FROM bindings
		WHERE channel = ? AND channel_user_id = ? AND status = 'active'
	`
	return scanBinding(s.db.QueryRowContext(ctx, query, channel, channelUserID))
}

// RevokeBinding transitions an active binding to revoked.
// Returns false without error if the binding is absent or already revoked,
// so revocation is idempotent and never rewrites timestamps.
func (s *SQLiteStore) RevokeBinding(ctx context.Context, id, reason string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		UPDATE bindings
		SET status = 'revoked', revoked_at = ?, revoke_reason = ?
		WHERE binding_id = ? AND status = 'active'
	`, now, reason, id)
	if err != nil {
		return false, fmt.Errorf("revoking binding: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Info("revoked binding", "id", id, "reason", reason)
	return true, nil
}

// ListBindings returns bindings matching the filter criteria, newest first.
func (s *SQLiteStore) ListBindings(ctx context.Context, f BindingFilter) ([]Binding, error) {
	query := `
		SELECT ` + bindingColumns + `
		FROM bindings
		WHERE (? IS NULL OR channel = ?)
		  AND (? IS NULL OR status = ?)
		ORDER BY created_at DESC
	`

	var statusFilter *string
	if f.Status != nil {
		str := string(*f.Status)
		statusFilter = &str
	}

	rows, err := s.db.QueryContext(ctx, query,
		f.Channel, f.Channel,
		statusFilter, statusFilter,
	)
	if err != nil {
		return nil, fmt.Errorf("querying bindings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bindings []Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating binding rows: %w", err)
	}

	return bindings, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanBinding scans a single binding row.
func scanBinding(row rowScanner) (*Binding, error) {
	var b Binding
	var tenantID, revokeReason sql.NullString
	var createdAtStr string
	var boundAtStr, revokedAtStr sql.NullString
	var statusStr string

	err := row.Scan(
		&b.ID,
		&b.Channel,
		&b.ChannelUserID,
		&b.UserID,
		&tenantID,
		&statusStr,
		&createdAtStr,
		&boundAtStr,
		&revokedAtStr,
		&revokeReason,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning binding: %w", err)
	}

	b.Status = BindingStatus(statusStr)
	b.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if tenantID.Valid {
		b.TenantID = tenantID.String
	}
	if revokeReason.Valid {
		b.RevokeReason = revokeReason.String
	}
	if boundAtStr.Valid {
		t, err := time.Parse(time.RFC3339, boundAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing bound_at: %w", err)
		}
		b.BoundAt = &t
	}
	if revokedAtStr.Valid {
		t, err := time.Parse(time.RFC3339, revokedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing revoked_at: %w", err)
		}
		b.RevokedAt = &t
	}

	return &b, nil
}

// nullString returns nil for empty strings, otherwise the string value.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime returns nil for nil times, otherwise the RFC3339 string.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
