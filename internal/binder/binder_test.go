// ABOUTME: Tests for the binding ceremony: challenges, verification, revocation
// ABOUTME: Uses an in-memory SQLite store and short TTLs for expiry cases

package binder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icdev/cmdgate/internal/store"
)

func newTestBinder(t *testing.T, ttl time.Duration) (*Binder, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.PutDirectoryUser(context.Background(), &store.DirectoryUser{
		UserID: "alice", Role: "operator", Active: true,
	}))

	return New(s, ttl, nil), s
}

func TestChallengeCeremony(t *testing.T) {
	b, _ := newTestBinder(t, time.Minute)
	ctx := context.Background()

	ch, err := b.InitiateChallenge(ctx, "slack", "U123")
	require.NoError(t, err)
	assert.Len(t, ch.Code, 8)
	assert.True(t, ch.ExpiresAt.After(time.Now()))

	binding, err := b.VerifyChallenge(ctx, ch.Code, "alice")
	require.NoError(t, err)
	assert.Equal(t, "slack", binding.Channel)
	assert.Equal(t, "U123", binding.ChannelUserID)
	assert.Equal(t, "alice", binding.UserID)
	assert.Equal(t, store.BindingStatusActive, binding.Status)

	resolved, err := b.ResolveBinding(ctx, "slack", "U123")
	require.NoError(t, err)
	assert.Equal(t, binding.ID, resolved.ID)
}

func TestChallengeConsumedOnce(t *testing.T) {
	b, _ := newTestBinder(t, time.Minute)
	ctx := context.Background()

	ch, err := b.InitiateChallenge(ctx, "slack", "U123")
	require.NoError(t, err)

	_, err = b.VerifyChallenge(ctx, ch.Code, "alice")
	require.NoError(t, err)

	// Same code a second time must fail even for the same user.
	_, err = b.VerifyChallenge(ctx, ch.Code, "alice")
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestChallengeExpiry(t *testing.T) {
	b, _ := newTestBinder(t, 10*time.Millisecond)
	ctx := context.Background()

	ch, err := b.InitiateChallenge(ctx, "slack", "U123")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = b.VerifyChallenge(ctx, ch.Code, "alice")
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestUnknownChallengeCode(t *testing.T) {
	b, _ := newTestBinder(t, time.Minute)

	_, err := b.VerifyChallenge(context.Background(), "NOPE1234", "alice")
	assert.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestVerifyUnknownUser(t *testing.T) {
	b, _ := newTestBinder(t, time.Minute)
	ctx := context.Background()

	ch, err := b.InitiateChallenge(ctx, "slack", "U123")
	require.NoError(t, err)

	_, err = b.VerifyChallenge(ctx, ch.Code, "mallory")
	assert.ErrorIs(t, err, ErrUnknownUser)

	// A mistyped user id does not burn the challenge; retrying with the
	// right one completes the ceremony.
	binding, err := b.VerifyChallenge(ctx, ch.Code, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", binding.UserID)
}

func TestInitiateWhileAlreadyBound(t *testing.T) {
	b, _ := newTestBinder(t, time.Minute)
	ctx := context.Background()

	ch, err := b.InitiateChallenge(ctx, "slack", "U123")
	require.NoError(t, err)
	_, err = b.VerifyChallenge(ctx, ch.Code, "alice")
	require.NoError(t, err)

	_, err = b.InitiateChallenge(ctx, "slack", "U123")
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestProvisionBinding(t *testing.T) {
	b, _ := newTestBinder(t, time.Minute)
	ctx := context.Background()

	binding, err := b.ProvisionBinding(ctx, "teams", "T9", "alice")
	require.NoError(t, err)
	assert.Equal(t, store.BindingStatusActive, binding.Status)

	// Provisioning over an existing active binding is refused.
	_, err = b.ProvisionBinding(ctx, "teams", "T9", "alice")
	assert.ErrorIs(t, err, ErrAlreadyBound)

	_, err = b.ProvisionBinding(ctx, "teams", "T10", "mallory")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestRevokeBinding(t *testing.T) {
	b, _ := newTestBinder(t, time.Minute)
	ctx := context.Background()

	binding, err := b.ProvisionBinding(ctx, "slack", "U5", "alice")
	require.NoError(t, err)

	revoked, err := b.RevokeBinding(ctx, binding.ID, "offboarding")
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = b.ResolveBinding(ctx, "slack", "U5")
	assert.ErrorIs(t, err, store.ErrBindingNotFound)

	// Idempotent: a second revoke is a no-op.
	revoked, err = b.RevokeBinding(ctx, binding.ID, "again")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestChallengeStoreSweep(t *testing.T) {
	cs := NewChallengeStore()

	_, err := cs.Create("slack", "U1", 10*time.Millisecond)
	require.NoError(t, err)
	_, err = cs.Create("slack", "U2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, cs.Len())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, cs.Len())
}
