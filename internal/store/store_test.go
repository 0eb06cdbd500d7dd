// ABOUTME: Tests for command log, audit trail, and identity directory methods
// ABOUTME: Uses an in-memory SQLite database per test

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndListCommandLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := &CommandLogEntry{
			AuditID:        fmt.Sprintf("audit-%d", i),
			EnvelopeID:     fmt.Sprintf("env-%d", i),
			Channel:        "slack",
			ChannelUserID:  "U1",
			UserID:         "alice",
			Command:        "status",
			ProjectID:      "billing-api",
			Success:        i != 2,
			Filtered:       i == 1,
			Classification: "internal",
			ElapsedMS:      int64(100 + i),
		}
		require.NoError(t, s.SaveCommandLog(ctx, entry))
	}

	entries, err := s.ListCommandLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "status", entries[0].Command)
	assert.False(t, entries[0].CreatedAt.IsZero())

	limited, err := s.ListCommandLog(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestAppendAndListAuditEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	event := &AuditEvent{
		EventType: AuditEventRejection,
		Actor:     "alice",
		Action:    "deploy",
		ProjectID: "billing-api",
		Detail:    map[string]any{"gate": "rate_limit", "reason": "exceeded"},
	}
	require.NoError(t, s.AppendAuditEvent(ctx, event))
	assert.NotEmpty(t, event.ID, "ID generated on append")
	assert.False(t, event.Timestamp.IsZero())

	events, err := s.ListAuditEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, AuditEventRejection, events[0].EventType)
	assert.Equal(t, "rate_limit", events[0].Detail["gate"])
}

func TestDirectoryUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetDirectoryUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutDirectoryUser(ctx, &DirectoryUser{
		UserID: "alice", Role: "operator", TenantID: "acme", Active: true,
	}))

	u, err := s.GetDirectoryUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "operator", u.Role)
	assert.True(t, u.Active)

	// Upsert flips the account inactive.
	require.NoError(t, s.PutDirectoryUser(ctx, &DirectoryUser{
		UserID: "alice", Role: "operator", TenantID: "acme", Active: false,
	}))
	u, err = s.GetDirectoryUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, u.Active)
}

func TestTenantActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Single-tenant deployments have no tenant rows; the empty id is
	// always active.
	active, err := s.TenantActive(ctx, "")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, s.PutTenant(ctx, "acme", true))
	active, err = s.TenantActive(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, s.PutTenant(ctx, "acme", false))
	active, err = s.TenantActive(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, active)
}
