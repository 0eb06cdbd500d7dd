// ABOUTME: Audit event store methods for the gateway's security trail
// ABOUTME: Records gate rejections, redactions, bind operations, and executions

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit event types emitted by the gateway.
const (
	AuditEventCommand   = "command_executed"
	AuditEventRejection = "command_rejected"
	AuditEventRedaction = "output_redacted"
	AuditEventBinding   = "binding_changed"
	AuditEventSensitive = "sensitive_domain"
)

// AppendAuditEvent appends an event to the audit trail.
// Generates ID and Timestamp if not set. Callers treat this as
// fire-and-forget; failures are logged and swallowed at the call site.
func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, e *AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (audit_id, event_type, actor, action, project_id, detail_json, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.EventType,
		e.Actor,
		e.Action,
		nullString(e.ProjectID),
		detailJSON,
		e.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}

	s.logger.Debug("appended audit event",
		"id", e.ID,
		"type", e.EventType,
		"actor", e.Actor,
		"action", e.Action,
	)
	return nil
}

// ListAuditEvents returns audit events, newest first.
// Limit defaults to 100 and is capped at 1000.
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	limit = normalizeLimit(limit)

	query := `
		SELECT audit_id, event_type, actor, action, project_id, detail_json, ts
		FROM audit_log
		ORDER BY ts DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var projectID, detailJSON *string
		var tsStr string

		if err := rows.Scan(&e.ID, &e.EventType, &e.Actor, &e.Action, &projectID, &detailJSON, &tsStr); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}

		e.Timestamp, err = time.Parse(time.RFC3339, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp: %w", err)
		}
		if projectID != nil {
			e.ProjectID = *projectID
		}
		if detailJSON != nil {
			if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling audit detail: %w", err)
			}
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}

	return events, nil
}

// normalizeLimit applies default (100) and cap (1000) to list limits.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
