// ABOUTME: Binding ceremony service linking channel identities to platform users
// ABOUTME: Challenge issue/verify, admin provisioning, resolution, and revocation

package binder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/icdev/cmdgate/internal/store"
)

var (
	// ErrChallengeInvalid is returned when a challenge code is unknown,
	// expired, or already consumed. Callers cannot distinguish which; the
	// response is the same either way.
	ErrChallengeInvalid = errors.New("challenge code invalid or expired")

	// ErrAlreadyBound is returned when the channel identity already has an
	// active binding.
	ErrAlreadyBound = errors.New("channel identity already bound")

	// ErrUnknownUser is returned when the claimed platform user does not
	// exist in the identity directory.
	ErrUnknownUser = errors.New("platform user not found in directory")
)

// Binder manages the lifecycle of identity bindings. All binding state
// lives in the store; only pending challenges are in memory.
type Binder struct {
	store      store.Store
	challenges *ChallengeStore
	ttl        time.Duration
	logger     *slog.Logger
}

// New creates a Binder backed by the given store. ttl bounds how long an
// issued challenge code remains verifiable.
func New(st store.Store, ttl time.Duration, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{
		store:      st,
		challenges: NewChallengeStore(),
		ttl:        ttl,
		logger:     logger.With("component", "binder"),
	}
}

// InitiateChallenge starts a binding ceremony for a channel identity and
// returns the one-time code the operator must relay through the platform's
// authenticated side. Fails if the identity is already actively bound.
func (b *Binder) InitiateChallenge(ctx context.Context, channel, channelUserID string) (*Challenge, error) {
	existing, err := b.store.GetActiveBinding(ctx, channel, channelUserID)
	if err != nil && !errors.Is(err, store.ErrBindingNotFound) {
		return nil, fmt.Errorf("checking existing binding: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyBound
	}

	ch, err := b.challenges.Create(channel, channelUserID, b.ttl)
	if err != nil {
		return nil, err
	}

	b.logger.Info("binding challenge issued",
		"channel", channel,
		"channel_user_id", channelUserID,
		"expires_at", ch.ExpiresAt.Format(time.RFC3339))
	return ch, nil
}

// VerifyChallenge completes a binding ceremony. The code must match a live
// challenge, the platform user must exist in the directory, and the channel
// identity must not have gained an active binding in the meantime. The
// challenge survives a failed directory lookup — a mistyped user id should
// not force a fresh /bind — and is consumed only once the user resolves.
func (b *Binder) VerifyChallenge(ctx context.Context, code, userID string) (*store.Binding, error) {
	ch := b.challenges.Peek(code)
	if ch == nil {
		return nil, ErrChallengeInvalid
	}

	user, err := b.store.GetDirectoryUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("looking up directory user: %w", err)
	}

	// A concurrent verify may have raced us to the code.
	if b.challenges.Consume(code) == nil {
		return nil, ErrChallengeInvalid
	}

	now := time.Now().UTC()
	binding := &store.Binding{
		ID:            uuid.New().String(),
		Channel:       ch.Channel,
		ChannelUserID: ch.ChannelUserID,
		UserID:        user.UserID,
		TenantID:      user.TenantID,
		Status:        store.BindingStatusActive,
		CreatedAt:     now,
		BoundAt:       &now,
	}
	if err := b.store.CreateBinding(ctx, binding); err != nil {
		if errors.Is(err, store.ErrBindingExists) {
			return nil, ErrAlreadyBound
		}
		return nil, fmt.Errorf("creating binding: %w", err)
	}

	b.auditBinding(ctx, "binding_verified", binding, "")
	b.logger.Info("binding verified",
		"binding_id", binding.ID,
		"channel", binding.Channel,
		"user_id", binding.UserID)
	return binding, nil
}

// ProvisionBinding creates an active binding directly, bypassing the
// challenge ceremony. Reserved for the authenticated admin surface.
func (b *Binder) ProvisionBinding(ctx context.Context, channel, channelUserID, userID string) (*store.Binding, error) {
	user, err := b.store.GetDirectoryUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("looking up directory user: %w", err)
	}

	now := time.Now().UTC()
	binding := &store.Binding{
		ID:            uuid.New().String(),
		Channel:       channel,
		ChannelUserID: channelUserID,
		UserID:        user.UserID,
		TenantID:      user.TenantID,
		Status:        store.BindingStatusActive,
		CreatedAt:     now,
		BoundAt:       &now,
	}
	if err := b.store.CreateBinding(ctx, binding); err != nil {
		if errors.Is(err, store.ErrBindingExists) {
			return nil, ErrAlreadyBound
		}
		return nil, fmt.Errorf("creating binding: %w", err)
	}

	b.auditBinding(ctx, "binding_provisioned", binding, "")
	b.logger.Info("binding provisioned",
		"binding_id", binding.ID,
		"channel", channel,
		"user_id", userID)
	return binding, nil
}

// ResolveBinding returns the active binding for a channel identity, or
// store.ErrBindingNotFound when none exists. Revoked bindings never resolve.
func (b *Binder) ResolveBinding(ctx context.Context, channel, channelUserID string) (*store.Binding, error) {
	return b.store.GetActiveBinding(ctx, channel, channelUserID)
}

// RevokeBinding marks a binding revoked with a reason. Returns false when
// the binding was not active; repeated revocations do not rewrite state.
func (b *Binder) RevokeBinding(ctx context.Context, id, reason string) (bool, error) {
	revoked, err := b.store.RevokeBinding(ctx, id, reason)
	if err != nil {
		return false, err
	}
	if revoked {
		if binding, gerr := b.store.GetBindingByID(ctx, id); gerr == nil {
			b.auditBinding(ctx, "binding_revoked", binding, reason)
		}
		b.logger.Info("binding revoked", "binding_id", id, "reason", reason)
	}
	return revoked, nil
}

// ListBindings returns bindings matching the filter.
func (b *Binder) ListBindings(ctx context.Context, filter store.BindingFilter) ([]store.Binding, error) {
	return b.store.ListBindings(ctx, filter)
}

// auditBinding records a binding lifecycle event. Best effort; a failed
// audit write never fails the binding operation itself.
func (b *Binder) auditBinding(ctx context.Context, action string, binding *store.Binding, reason string) {
	detail := map[string]any{
		"binding_id":      binding.ID,
		"channel":         binding.Channel,
		"channel_user_id": binding.ChannelUserID,
	}
	if reason != "" {
		detail["reason"] = reason
	}
	event := &store.AuditEvent{
		EventType: store.AuditEventBinding,
		Actor:     binding.UserID,
		Action:    action,
		Detail:    detail,
	}
	if err := b.store.AppendAuditEvent(ctx, event); err != nil {
		b.logger.Warn("audit write failed", "action", action, "error", err)
	}
}
