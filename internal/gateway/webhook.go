// ABOUTME: Inbound webhook pipeline: verify, parse, gate, execute, reply
// ABOUTME: Always answers 200 with a JSON status except on hard signature failure

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/icdev/cmdgate/internal/binder"
	"github.com/icdev/cmdgate/internal/channel"
	"github.com/icdev/cmdgate/internal/envelope"
	"github.com/icdev/cmdgate/internal/filter"
	"github.com/icdev/cmdgate/internal/router"
	"github.com/icdev/cmdgate/internal/secchain"
)

// maxWebhookBody bounds inbound payload size.
const maxWebhookBody = 1 << 20

// webhookStatus values returned to the channel provider.
const (
	statusIgnored   = "ignored"
	statusRejected  = "rejected"
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusAccepted  = "accepted"
)

// handleWebhook builds the handler for one adapter's webhook route.
// Providers retry on non-2xx, so every outcome except an inauthentic
// request answers 200 with a JSON status body.
func (g *Gateway) handleWebhook(adapter channel.Adapter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			sendJSON(w, http.StatusOK, map[string]string{"status": statusIgnored})
			return
		}

		sigErr := adapter.VerifySignature(r, body)
		if sigErr != nil {
			// Hard failure: an attacker probing the endpoint gets no
			// pipeline behavior to observe.
			g.logger.Warn("webhook signature failure", "channel", adapter.Name())
			sendJSON(w, http.StatusUnauthorized, map[string]string{"error": "signature verification failed"})
			return
		}

		msg, err := adapter.Parse(body)
		if err != nil {
			if !errors.Is(err, channel.ErrNotAMessage) {
				g.logger.Debug("unparseable webhook payload", "channel", adapter.Name(), "error", err)
			}
			sendJSON(w, http.StatusOK, map[string]string{"status": statusIgnored})
			return
		}

		resp := g.processMessage(r.Context(), adapter, msg, sigErr)
		sendJSON(w, http.StatusOK, resp)
	})
}

// processMessage runs one inbound message through the full pipeline and
// returns the JSON status body for the provider.
func (g *Gateway) processMessage(ctx context.Context, adapter channel.Adapter, msg *channel.Message, sigErr error) map[string]any {
	text := strings.TrimSpace(msg.Text)

	// Binding ceremony short-circuits the command pipeline: an unbound
	// user must be able to reach it.
	if cmd, _, _, ok := envelope.ParseCommand(text); ok && cmd == "bind" {
		return g.handleChatBind(ctx, adapter, msg)
	}

	env := envelope.New(adapter.Name(), msg.ChannelUserID, text)
	env.ChannelUserName = msg.ChannelUserName
	env.MessageID = msg.MessageID
	env.ThreadID = msg.ThreadID
	env.Timestamp = msg.Timestamp
	env.IsBot = msg.IsBot

	cmd, args, projectID, ok := envelope.ParseCommand(text)
	if !ok {
		// Ordinary chatter, not addressed to the gateway.
		return map[string]any{"status": statusIgnored}
	}
	env.Command = cmd
	env.Args = args
	env.ProjectID = projectID

	// Unknown or channel-disabled commands get a friendly pointer before
	// the chain runs; the chain re-checks so a direct caller cannot skip it.
	if allowed, _ := g.catalog.IsAllowed(env.Command, env.Channel); !allowed {
		g.reply(ctx, adapter, msg, "Unknown command /"+env.Command+". It may not be available on this channel.")
		return map[string]any{"status": statusRejected, "reason": "unknown or unavailable command"}
	}

	dec := g.chain.Evaluate(ctx, env, secchain.Input{
		SignatureErr:    sigErr,
		ChannelMaxLevel: adapter.MaxClassification(),
	})
	if !dec.Allowed {
		// The full reason stays in the audit trail; neither the channel
		// reply nor the provider response carries it.
		g.reply(ctx, adapter, msg, rejectionText(dec))
		return map[string]any{
			"status": statusRejected,
			"gate":   dec.FailedGate,
		}
	}

	// Confirmation round-trip: the first invocation of a guarded command
	// only describes how to confirm; nothing executes until the operator
	// re-sends it with an explicit confirm=yes.
	if dec.Entry.RequireConfirm && !strings.EqualFold(env.Args["confirm"], "yes") {
		g.reply(ctx, adapter, msg, "/"+env.Command+" requires confirmation. Re-send the command with confirm=yes to run it.")
		return map[string]any{"status": statusRejected, "reason": "confirmation required"}
	}

	res, err := g.router.Execute(ctx, env, dec.Entry)
	if err != nil {
		if errors.Is(err, router.ErrMissingArg) {
			g.reply(ctx, adapter, msg, "Cannot run /"+env.Command+": "+err.Error())
			return map[string]any{"status": statusRejected, "reason": err.Error()}
		}
		g.logger.Error("command execution failed", "envelope_id", env.ID, "error", err)
		g.reply(ctx, adapter, msg, "Command failed to start. The execution has been logged.")
		g.router.RecordExecution(ctx, env, &router.ExecutionResult{}, envelope.ClassPublic, false)
		return map[string]any{"status": statusFailed}
	}

	fres := g.filter.Apply(ctx, res.Output, env.Channel, env.UserID, env.Command, adapter.MaxClassification())
	auditID := g.router.RecordExecution(ctx, env, res, fres.Detected, fres.Filtered)

	out := filter.Truncate(filter.Format(env.Command, env.ProjectID, fres, res.ElapsedMS, auditID), adapter.MaxMessageLength())
	g.reply(ctx, adapter, msg, out)

	status := statusCompleted
	if !res.Success {
		status = statusFailed
	}
	return map[string]any{
		"status":   status,
		"audit_id": auditID,
		"filtered": fres.Filtered,
	}
}

// handleChatBind runs the channel side of the binding ceremony: issue a
// challenge code and tell the operator to complete it on the platform side.
func (g *Gateway) handleChatBind(ctx context.Context, adapter channel.Adapter, msg *channel.Message) map[string]any {
	if msg.IsBot {
		return map[string]any{"status": statusIgnored}
	}

	ch, err := g.binder.InitiateChallenge(ctx, adapter.Name(), msg.ChannelUserID)
	if err != nil {
		if errors.Is(err, binder.ErrAlreadyBound) {
			g.reply(ctx, adapter, msg, "This account is already bound.")
			return map[string]any{"status": statusRejected, "reason": "already bound"}
		}
		g.logger.Error("challenge creation failed", "channel", adapter.Name(), "error", err)
		g.reply(ctx, adapter, msg, "Binding is unavailable right now.")
		return map[string]any{"status": statusFailed}
	}

	g.reply(ctx, adapter, msg,
		"Binding code: "+ch.Code+"\nComplete the binding from your platform account within "+
			g.cfg.Security.ChallengeTTL.String()+". The code works once.")
	return map[string]any{"status": statusAccepted}
}

// reply sends text back to the channel. Best effort: delivery failure is
// logged, never surfaced to the provider.
func (g *Gateway) reply(ctx context.Context, adapter channel.Adapter, msg *channel.Message, text string) {
	if text == "" {
		return
	}
	if err := adapter.SendReply(ctx, msg, text); err != nil {
		g.logger.Warn("reply delivery failed", "channel", adapter.Name(), "error", err)
	}
}

// rejectionText renders a gate rejection for the operator. Internal
// details stay in the audit log; the chat message names only the gate
// category, never the reason.
func rejectionText(dec secchain.Decision) string {
	switch dec.FailedGate {
	case secchain.GateIdentity:
		return "You are not bound to a platform account. Send /bind to start."
	case secchain.GateRateLimit:
		return "Rate limit exceeded. Try again shortly."
	default:
		return "Command refused: " + dec.FailedGate + " check failed."
	}
}

// sendJSON writes a JSON response body.
func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
