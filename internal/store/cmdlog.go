// ABOUTME: Command execution history store methods
// ABOUTME: Every execution, success or failure, is recorded keyed by audit id

package store

import (
	"context"
	"fmt"
	"time"
)

// SaveCommandLog records one command execution.
func (s *SQLiteStore) SaveCommandLog(ctx context.Context, e *CommandLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO command_log (audit_id, envelope_id, channel, channel_user_id, user_id,
			command, project_id, success, filtered, classification, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.AuditID,
		e.EnvelopeID,
		e.Channel,
		e.ChannelUserID,
		nullString(e.UserID),
		e.Command,
		nullString(e.ProjectID),
		boolToInt(e.Success),
		boolToInt(e.Filtered),
		nullString(e.Classification),
		e.ElapsedMS,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command log entry: %w", err)
	}

	s.logger.Debug("saved command log entry",
		"audit_id", e.AuditID,
		"command", e.Command,
		"success", e.Success,
	)
	return nil
}

// ListCommandLog returns execution history entries, newest first.
// Limit defaults to 100 and is capped at 1000.
func (s *SQLiteStore) ListCommandLog(ctx context.Context, limit int) ([]CommandLogEntry, error) {
	limit = normalizeLimit(limit)

	query := `
		SELECT audit_id, envelope_id, channel, channel_user_id, user_id,
			command, project_id, success, filtered, classification, elapsed_ms, created_at
		FROM command_log
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []CommandLogEntry
	for rows.Next() {
		var e CommandLogEntry
		var userID, projectID, classification *string
		var success, filtered int
		var createdAtStr string

		if err := rows.Scan(
			&e.AuditID,
			&e.EnvelopeID,
			&e.Channel,
			&e.ChannelUserID,
			&userID,
			&e.Command,
			&projectID,
			&success,
			&filtered,
			&classification,
			&e.ElapsedMS,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning command log row: %w", err)
		}

		e.Success = success != 0
		e.Filtered = filtered != 0
		if userID != nil {
			e.UserID = *userID
		}
		if projectID != nil {
			e.ProjectID = *projectID
		}
		if classification != nil {
			e.Classification = *classification
		}

		e.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log rows: %w", err)
	}

	return entries, nil
}

// boolToInt converts a bool to sqlite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
