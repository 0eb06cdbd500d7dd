// ABOUTME: Authenticated admin API: bindings, execution history, audit trail
// ABOUTME: Plus unauthenticated health and agent-card discovery endpoints

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/icdev/cmdgate/internal/auth"
	"github.com/icdev/cmdgate/internal/binder"
	"github.com/icdev/cmdgate/internal/store"
)

// bindRequest is the admin-side body for the binding ceremony.
type bindRequest struct {
	// Action is "initiate", "verify", or "provision".
	Action        string `json:"action"`
	Channel       string `json:"channel"`
	ChannelUserID string `json:"channel_user_id"`
	Code          string `json:"code"`
	UserID        string `json:"user_id"`
}

// handleBind drives the platform side of binding: verify a challenge code
// issued in chat, provision directly, or initiate a challenge out of band.
func (g *Gateway) handleBind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "initiate":
		if req.Channel == "" || req.ChannelUserID == "" {
			sendJSONError(w, http.StatusBadRequest, "channel and channel_user_id required")
			return
		}
		ch, err := g.binder.InitiateChallenge(ctx, req.Channel, req.ChannelUserID)
		if err != nil {
			sendBindError(w, err)
			return
		}
		sendJSON(w, http.StatusOK, map[string]any{
			"code":       ch.Code,
			"expires_at": ch.ExpiresAt.Format(time.RFC3339),
		})

	case "verify":
		if req.Code == "" || req.UserID == "" {
			sendJSONError(w, http.StatusBadRequest, "code and user_id required")
			return
		}
		b, err := g.binder.VerifyChallenge(ctx, req.Code, req.UserID)
		if err != nil {
			sendBindError(w, err)
			return
		}
		g.logger.Info("binding verified via admin api",
			"binding_id", b.ID, "operator", auth.Subject(ctx))
		sendJSON(w, http.StatusOK, bindingToJSON(b))

	case "provision":
		if req.Channel == "" || req.ChannelUserID == "" || req.UserID == "" {
			sendJSONError(w, http.StatusBadRequest, "channel, channel_user_id, and user_id required")
			return
		}
		b, err := g.binder.ProvisionBinding(ctx, req.Channel, req.ChannelUserID, req.UserID)
		if err != nil {
			sendBindError(w, err)
			return
		}
		g.logger.Info("binding provisioned via admin api",
			"binding_id", b.ID, "operator", auth.Subject(ctx))
		sendJSON(w, http.StatusOK, bindingToJSON(b))

	default:
		sendJSONError(w, http.StatusBadRequest, "unknown action")
	}
}

// sendBindError maps binder errors onto HTTP statuses.
func sendBindError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, binder.ErrChallengeInvalid):
		sendJSONError(w, http.StatusBadRequest, "challenge code invalid or expired")
	case errors.Is(err, binder.ErrAlreadyBound):
		sendJSONError(w, http.StatusConflict, "channel identity already bound")
	case errors.Is(err, binder.ErrUnknownUser):
		sendJSONError(w, http.StatusNotFound, "platform user not found")
	default:
		sendJSONError(w, http.StatusInternalServerError, "binding operation failed")
	}
}

func (g *Gateway) handleListBindings(w http.ResponseWriter, r *http.Request) {
	f := store.BindingFilter{}
	if ch := r.URL.Query().Get("channel"); ch != "" {
		f.Channel = &ch
	}
	if st := r.URL.Query().Get("status"); st != "" {
		status := store.BindingStatus(st)
		f.Status = &status
	}

	bindings, err := g.binder.ListBindings(r.Context(), f)
	if err != nil {
		g.logger.Error("listing bindings failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "listing bindings failed")
		return
	}

	out := make([]map[string]any, 0, len(bindings))
	for i := range bindings {
		out = append(out, bindingToJSON(&bindings[i]))
	}
	sendJSON(w, http.StatusOK, map[string]any{"bindings": out})
}

func (g *Gateway) handleRevokeBinding(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Reason == "" {
		sendJSONError(w, http.StatusBadRequest, "reason required")
		return
	}

	revoked, err := g.binder.RevokeBinding(r.Context(), id, body.Reason)
	if err != nil {
		if errors.Is(err, store.ErrBindingNotFound) {
			sendJSONError(w, http.StatusNotFound, "binding not found")
			return
		}
		g.logger.Error("revoking binding failed", "binding_id", id, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "revoking binding failed")
		return
	}

	g.logger.Info("binding revocation requested",
		"binding_id", id, "revoked", revoked, "operator", auth.Subject(r.Context()))
	sendJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
}

func (g *Gateway) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	entries, err := g.store.ListCommandLog(r.Context(), queryLimit(r))
	if err != nil {
		g.logger.Error("listing executions failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "listing executions failed")
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"audit_id":        e.AuditID,
			"envelope_id":     e.EnvelopeID,
			"channel":         e.Channel,
			"channel_user_id": e.ChannelUserID,
			"user_id":         e.UserID,
			"command":         e.Command,
			"project_id":      e.ProjectID,
			"success":         e.Success,
			"filtered":        e.Filtered,
			"classification":  e.Classification,
			"elapsed_ms":      e.ElapsedMS,
			"created_at":      e.CreatedAt.Format(time.RFC3339),
		})
	}
	sendJSON(w, http.StatusOK, map[string]any{"executions": out})
}

func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	events, err := g.store.ListAuditEvents(r.Context(), queryLimit(r))
	if err != nil {
		g.logger.Error("listing audit events failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "listing audit events failed")
		return
	}

	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"id":         e.ID,
			"event_type": e.EventType,
			"actor":      e.Actor,
			"action":     e.Action,
			"project_id": e.ProjectID,
			"detail":     e.Detail,
			"timestamp":  e.Timestamp.Format(time.RFC3339),
		})
	}
	sendJSON(w, http.StatusOK, map[string]any{"events": out})
}

// handleHealth reports liveness plus basic wiring facts.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	channels := make([]string, 0, len(g.adapters))
	for _, a := range g.adapters {
		channels = append(channels, a.Name())
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"mode":       g.cfg.Gateway.Mode,
		"channels":   channels,
		"commands":   g.catalog.Len(),
		"uptime_sec": int(time.Since(g.startedAt).Seconds()),
	})
}

// handleAgentCard serves a small discovery document describing the
// gateway's command surface.
func (g *Gateway) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	channels := make([]map[string]any, 0, len(g.adapters))
	for _, a := range g.adapters {
		channels = append(channels, map[string]any{
			"name":               a.Name(),
			"webhook_path":       a.WebhookPath(),
			"max_classification": a.MaxClassification().String(),
			"max_message_length": a.MaxMessageLength(),
		})
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"name":        "cmdgate",
		"description": "Remote command gateway for pre-approved platform operations",
		"channels":    channels,
		"endpoints": map[string]string{
			"bind":   "/gateway/bind",
			"health": "/health",
		},
	})
}

func bindingToJSON(b *store.Binding) map[string]any {
	out := map[string]any{
		"id":              b.ID,
		"channel":         b.Channel,
		"channel_user_id": b.ChannelUserID,
		"user_id":         b.UserID,
		"tenant_id":       b.TenantID,
		"status":          string(b.Status),
		"created_at":      b.CreatedAt.Format(time.RFC3339),
	}
	if b.BoundAt != nil {
		out["bound_at"] = b.BoundAt.Format(time.RFC3339)
	}
	if b.RevokedAt != nil {
		out["revoked_at"] = b.RevokedAt.Format(time.RFC3339)
		out["revoke_reason"] = b.RevokeReason
	}
	return out
}

// queryLimit parses the limit query parameter; 0 lets the store default.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func sendJSONError(w http.ResponseWriter, status int, msg string) {
	sendJSON(w, status, map[string]string{"error": msg})
}
