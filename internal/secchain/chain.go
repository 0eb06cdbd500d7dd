// ABOUTME: Ordered fail-closed security chain every command envelope passes
// ABOUTME: Eight gates; the first failure halts, the authority gate only observes

package secchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/icdev/cmdgate/internal/catalog"
	"github.com/icdev/cmdgate/internal/config"
	"github.com/icdev/cmdgate/internal/envelope"
	"github.com/icdev/cmdgate/internal/store"
)

// Gate names, in evaluation order.
const (
	GateSignature       = "signature"
	GateReplay          = "replay"
	GateIdentity        = "identity"
	GateAuthentication  = "authentication"
	GateClassification  = "classification"
	GateAuthorization   = "authorization"
	GateRateLimit       = "rate_limit"
	GateDomainAuthority = "domain_authority"
)

// roleCategories maps a directory role to the command categories it may
// invoke. Unknown roles map to nothing.
var roleCategories = map[string]map[string]bool{
	"viewer":    {catalog.CategoryRead: true},
	"developer": {catalog.CategoryRead: true, catalog.CategoryExecute: true},
	"operator":  {catalog.CategoryRead: true, catalog.CategoryExecute: true, catalog.CategoryWrite: true},
	"admin":     {catalog.CategoryRead: true, catalog.CategoryExecute: true, catalog.CategoryWrite: true},
}

// BindingResolver resolves a channel identity to its active binding.
type BindingResolver interface {
	ResolveBinding(ctx context.Context, channel, channelUserID string) (*store.Binding, error)
}

// Input carries the per-request facts the chain needs beyond the envelope.
type Input struct {
	// SignatureErr is the adapter's verification result. nil means the
	// webhook was authentic or the channel is signature-exempt.
	SignatureErr error

	// ChannelMaxLevel is the channel's output classification ceiling.
	ChannelMaxLevel envelope.Classification
}

// Decision is the chain's verdict on one envelope.
type Decision struct {
	Allowed    bool
	FailedGate string
	Reason     string

	// Entry is the allowlist entry for the command. Set once the
	// classification gate has run.
	Entry *catalog.Entry
}

// Chain evaluates envelopes against the gate sequence. All dependencies
// are injected; the chain itself holds no mutable state beyond its
// limiters and replay cache.
type Chain struct {
	store       store.Store
	resolver    BindingResolver
	catalog     *catalog.Catalog
	userLimit   *RateLimiter
	chanLimit   *RateLimiter
	seen        *seenCache
	replayWin   time.Duration
	clockSkew   time.Duration
	multiTenant bool
	logger      *slog.Logger
}

// New creates a Chain from the security config.
func New(st store.Store, resolver BindingResolver, cat *catalog.Catalog, sec *config.SecurityConfig, multiTenant bool, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		store:       st,
		resolver:    resolver,
		catalog:     cat,
		userLimit:   NewRateLimiter(sec.UserRateLimit, sec.RateWindow),
		chanLimit:   NewRateLimiter(sec.ChannelRateLimit, sec.RateWindow),
		seen:        newSeenCache(sec.ReplayWindow),
		replayWin:   sec.ReplayWindow,
		clockSkew:   sec.ClockSkew,
		multiTenant: multiTenant,
		logger:      logger.With("component", "secchain"),
	}
}

// gateFunc evaluates one gate. ok=false halts the chain with reason.
type gateFunc func(ctx context.Context, env *envelope.Envelope, in *Input, dec *Decision) (ok bool, reason string)

// Evaluate runs the envelope through every gate in order. The first
// failing gate halts evaluation and the envelope is rejected; no later
// gate can resurrect it. Every gate outcome is recorded on the envelope
// for the audit trail.
func (c *Chain) Evaluate(ctx context.Context, env *envelope.Envelope, in Input) Decision {
	gates := []struct {
		name string
		fn   gateFunc
	}{
		{GateSignature, c.gateSignature},
		{GateReplay, c.gateReplay},
		{GateIdentity, c.gateIdentity},
		{GateAuthentication, c.gateAuthentication},
		{GateClassification, c.gateClassification},
		{GateAuthorization, c.gateAuthorization},
		{GateRateLimit, c.gateRateLimit},
		{GateDomainAuthority, c.gateDomainAuthority},
	}

	dec := Decision{Allowed: true}
	for _, g := range gates {
		ok, reason := g.fn(ctx, env, &in, &dec)
		env.RecordGate(g.name, ok, reason)
		if !ok {
			dec.Allowed = false
			dec.FailedGate = g.name
			dec.Reason = reason
			c.logger.Warn("envelope rejected",
				"envelope_id", env.ID,
				"channel", env.Channel,
				"gate", g.name,
				"reason", reason)
			c.auditRejection(ctx, env, g.name, reason)
			return dec
		}
	}
	return dec
}

func (c *Chain) gateSignature(_ context.Context, _ *envelope.Envelope, in *Input, _ *Decision) (bool, string) {
	if in.SignatureErr != nil {
		return false, "signature verification failed"
	}
	return true, ""
}

// gateReplay rejects bot-authored messages, stale or future timestamps,
// and message IDs already seen inside the replay window.
func (c *Chain) gateReplay(_ context.Context, env *envelope.Envelope, _ *Input, _ *Decision) (bool, string) {
	if env.IsBot {
		return false, "bot-authored message"
	}

	now := time.Now()
	age := now.Sub(env.Timestamp)
	if age > c.replayWin+c.clockSkew {
		return false, fmt.Sprintf("message older than replay window (%s)", age.Round(time.Second))
	}
	if age < -c.clockSkew {
		return false, "message timestamp in the future"
	}

	// Some channels omit message IDs; those envelopes cannot be
	// fingerprinted and must not collide on one cache key.
	if env.MessageID != "" && c.seen.seen(env.Channel+"/"+env.MessageID) {
		return false, "duplicate message id inside replay window"
	}
	return true, ""
}

// gateIdentity resolves the channel identity to its active binding and
// stamps the platform identity onto the envelope.
func (c *Chain) gateIdentity(ctx context.Context, env *envelope.Envelope, _ *Input, _ *Decision) (bool, string) {
	binding, err := c.resolver.ResolveBinding(ctx, env.Channel, env.ChannelUserID)
	if err != nil {
		if errors.Is(err, store.ErrBindingNotFound) {
			return false, "no active binding for channel identity"
		}
		c.logger.Error("binding resolution failed", "error", err)
		return false, "binding resolution unavailable"
	}
	env.BindingID = binding.ID
	env.UserID = binding.UserID
	env.TenantID = binding.TenantID
	return true, ""
}

// gateAuthentication confirms the bound platform user still exists, is
// active, and (in multi-tenant deployments) belongs to an active tenant.
// The role stamped here feeds the authorization gate.
func (c *Chain) gateAuthentication(ctx context.Context, env *envelope.Envelope, _ *Input, _ *Decision) (bool, string) {
	user, err := c.store.GetDirectoryUser(ctx, env.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, "bound user no longer in directory"
		}
		c.logger.Error("directory lookup failed", "error", err)
		return false, "identity directory unavailable"
	}
	if !user.Active {
		return false, "platform user deactivated"
	}

	if c.multiTenant {
		active, err := c.store.TenantActive(ctx, env.TenantID)
		if err != nil {
			c.logger.Error("tenant lookup failed", "error", err)
			return false, "tenant directory unavailable"
		}
		if !active {
			return false, "tenant suspended"
		}
	}

	env.Role = user.Role
	return true, ""
}

// gateClassification checks the command's declared output classification
// against the channel's ceiling, before the command ever runs. This is the
// pre-execution counterpart of the response filter's post-execution
// redaction.
func (c *Chain) gateClassification(_ context.Context, env *envelope.Envelope, in *Input, dec *Decision) (bool, string) {
	entry, err := c.catalog.Lookup(env.Command)
	if err != nil {
		return false, fmt.Sprintf("command %q not in allowlist", env.Command)
	}
	if entry.MaxLevel() > in.ChannelMaxLevel {
		return false, fmt.Sprintf("command output classified %s exceeds channel ceiling %s",
			entry.MaxLevel(), in.ChannelMaxLevel)
	}
	dec.Entry = entry
	return true, ""
}

// gateAuthorization checks the allowlist's channel restriction and the
// user's role against the command category.
func (c *Chain) gateAuthorization(_ context.Context, env *envelope.Envelope, _ *Input, dec *Decision) (bool, string) {
	if !dec.Entry.AllowedOnChannel(env.Channel) {
		return false, fmt.Sprintf("command %q not permitted on channel %q", env.Command, env.Channel)
	}
	cats, ok := roleCategories[env.Role]
	if !ok {
		return false, fmt.Sprintf("unknown role %q", env.Role)
	}
	if !cats[dec.Entry.Category] {
		return false, fmt.Sprintf("role %q may not run %s commands", env.Role, dec.Entry.Category)
	}
	return true, ""
}

// gateRateLimit checks both ceilings; a rejected request consumes no slot
// in either window.
func (c *Chain) gateRateLimit(_ context.Context, env *envelope.Envelope, _ *Input, _ *Decision) (bool, string) {
	userKey := "user/" + env.UserID
	if !c.userLimit.Allow(userKey) {
		return false, "per-identity rate limit exceeded"
	}
	if !c.chanLimit.Allow("channel/" + env.Channel) {
		c.userLimit.Forget(userKey)
		return false, "per-channel rate limit exceeded"
	}
	return true, ""
}

// gateDomainAuthority runs last and never rejects. Commands touching a
// sensitive domain get an extra audit record so authority owners can
// review after the fact.
func (c *Chain) gateDomainAuthority(ctx context.Context, env *envelope.Envelope, _ *Input, dec *Decision) (bool, string) {
	if dec.Entry == nil || dec.Entry.SensitiveDomain == "" {
		return true, ""
	}
	event := &store.AuditEvent{
		EventType: store.AuditEventSensitive,
		Actor:     env.UserID,
		Action:    env.Command,
		ProjectID: env.ProjectID,
		Detail: map[string]any{
			"domain":  dec.Entry.SensitiveDomain,
			"channel": env.Channel,
		},
	}
	if err := c.store.AppendAuditEvent(ctx, event); err != nil {
		c.logger.Warn("sensitive-domain audit failed", "command", env.Command, "error", err)
	}
	return true, "sensitive domain recorded"
}

// auditRejection records a rejected envelope. Best effort.
func (c *Chain) auditRejection(ctx context.Context, env *envelope.Envelope, gate, reason string) {
	event := &store.AuditEvent{
		EventType: store.AuditEventRejection,
		Actor:     env.UserID,
		Action:    env.Command,
		ProjectID: env.ProjectID,
		Detail: map[string]any{
			"gate":            gate,
			"reason":          reason,
			"channel":         env.Channel,
			"channel_user_id": env.ChannelUserID,
		},
	}
	if err := c.store.AppendAuditEvent(ctx, event); err != nil {
		c.logger.Warn("rejection audit failed", "gate", gate, "error", err)
	}
}
