// ABOUTME: Channel adapter contract and registry for messaging front ends
// ABOUTME: Adapters normalize inbound webhooks and deliver replies per channel

package channel

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/icdev/cmdgate/internal/config"
	"github.com/icdev/cmdgate/internal/envelope"
)

var (
	// ErrBadSignature is returned when a webhook fails authenticity
	// verification. The gateway maps this to a hard 401.
	ErrBadSignature = errors.New("webhook signature verification failed")

	// ErrNotAMessage is returned when a payload parses but carries no
	// user message (pings, URL verification, channel lifecycle events).
	ErrNotAMessage = errors.New("payload is not a user message")
)

// Message is a normalized inbound message from any channel.
type Message struct {
	ChannelUserID   string
	ChannelUserName string
	MessageID       string
	ThreadID        string
	Text            string
	Timestamp       time.Time
	IsBot           bool
}

// Adapter is one messaging channel's front end. Implementations must be
// safe for concurrent use.
type Adapter interface {
	// Name is the stable channel identifier used in bindings and the
	// command allowlist.
	Name() string

	// VerifySignature checks the authenticity of an inbound webhook
	// request. body is the already-read request body. A nil return means
	// the request is authentic; ErrBadSignature means it is not.
	VerifySignature(r *http.Request, body []byte) error

	// Parse extracts the user message from a verified webhook body.
	Parse(body []byte) (*Message, error)

	// SendReply delivers text back to the channel, threading on the
	// original message when the channel supports it.
	SendReply(ctx context.Context, original *Message, text string) error

	// Available reports whether the adapter can operate in the given
	// environment mode. Adapters needing internet egress return false
	// for isolated deployments.
	Available(mode string) bool

	// MaxClassification is the channel's output ceiling.
	MaxClassification() envelope.Classification

	// MaxMessageLength is the channel's reply size limit in runes;
	// zero means unlimited.
	MaxMessageLength() int

	// WebhookPath is the HTTP path the gateway mounts this adapter on.
	WebhookPath() string
}

// replyClient is the shared HTTP client for outbound replies. Replies are
// best effort; a slow channel endpoint must not back up the webhook loop.
var replyClient = &http.Client{Timeout: 10 * time.Second}

// BuildAdapters constructs the adapters enabled in the channel config,
// dropping any that cannot operate in the given environment mode.
func BuildAdapters(cfg *config.ChannelsConfig, mode string) []Adapter {
	var candidates []Adapter
	if cfg.Internal.Enabled {
		candidates = append(candidates, NewInternalChat(&cfg.Internal))
	}
	if cfg.Slack.Enabled {
		candidates = append(candidates, NewSlack(&cfg.Slack))
	}
	if cfg.Teams.Enabled {
		candidates = append(candidates, NewTeams(&cfg.Teams))
	}

	var adapters []Adapter
	for _, a := range candidates {
		if a.Available(mode) {
			adapters = append(adapters, a)
		}
	}
	return adapters
}
