// ABOUTME: Store interface and data types for cmdgate persistence
// ABOUTME: Defines Binding, CommandLogEntry, AuditEvent and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// BindingStatus represents the lifecycle state of a channel binding.
type BindingStatus string

const (
	BindingStatusPending BindingStatus = "pending"
	BindingStatusActive  BindingStatus = "active"
	BindingStatusRevoked BindingStatus = "revoked"
)

// Binding is the durable link between one external channel identity and one
// internal user. (channel, channel_user_id) form the natural key for the
// active record; revoked rows are kept as history.
type Binding struct {
	ID            string
	Channel       string
	ChannelUserID string
	UserID        string
	TenantID      string
	Status        BindingStatus
	CreatedAt     time.Time
	BoundAt       *time.Time
	RevokedAt     *time.Time
	RevokeReason  string
}

// BindingFilter specifies filtering options for listing bindings.
type BindingFilter struct {
	Channel *string
	Status  *BindingStatus
}

// CommandLogEntry records one command execution, success or failure,
// keyed by the generated audit id.
type CommandLogEntry struct {
	AuditID        string
	EnvelopeID     string
	Channel        string
	ChannelUserID  string
	UserID         string
	Command        string
	ProjectID      string
	Success        bool
	Filtered       bool
	Classification string
	ElapsedMS      int64
	CreatedAt      time.Time
}

// AuditEvent is one fire-and-forget entry in the audit trail.
type AuditEvent struct {
	ID        string
	EventType string
	Actor     string
	Action    string
	ProjectID string
	Detail    map[string]any
	Timestamp time.Time
}

// DirectoryUser is one row of the identity directory consumed by the
// security chain: internal user id, role, and account status.
type DirectoryUser struct {
	UserID   string
	Role     string
	TenantID string
	Active   bool
}

// Store defines the interface for cmdgate persistence.
type Store interface {
	// Bindings
	CreateBinding(ctx context.Context, b *Binding) error
	GetBindingByID(ctx context.Context, id string) (*Binding, error)
	GetActiveBinding(ctx context.Context, channel, channelUserID string) (*Binding, error)
	RevokeBinding(ctx context.Context, id, reason string) (bool, error)
	ListBindings(ctx context.Context, f BindingFilter) ([]Binding, error)

	// Command execution history
	SaveCommandLog(ctx context.Context, e *CommandLogEntry) error
	ListCommandLog(ctx context.Context, limit int) ([]CommandLogEntry, error)

	// Audit trail
	AppendAuditEvent(ctx context.Context, e *AuditEvent) error
	ListAuditEvents(ctx context.Context, limit int) ([]AuditEvent, error)

	// Identity directory (read side; provisioning is an external concern)
	GetDirectoryUser(ctx context.Context, userID string) (*DirectoryUser, error)
	TenantActive(ctx context.Context, tenantID string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
