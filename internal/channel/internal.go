// ABOUTME: Adapter for the platform's internal chat, co-located with the gateway
// ABOUTME: Trusted transport, so inbound requests are signature-exempt

package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/icdev/cmdgate/internal/config"
	"github.com/icdev/cmdgate/internal/envelope"
)

// InternalChat serves the platform's own chat system. It reaches the
// gateway over the internal network, so there is no shared-secret
// signature; network placement is the authenticity boundary.
type InternalChat struct {
	cfg      *config.ChannelConfig
	maxLevel envelope.Classification
}

// NewInternalChat creates the internal chat adapter.
func NewInternalChat(cfg *config.ChannelConfig) *InternalChat {
	return &InternalChat{
		cfg:      cfg,
		maxLevel: envelope.ParseClassification(cfg.MaxClassification),
	}
}

func (a *InternalChat) Name() string { return "internal" }

// VerifySignature always passes. Internal chat traffic never leaves the
// platform network.
func (a *InternalChat) VerifySignature(_ *http.Request, _ []byte) error { return nil }

// internalPayload is the internal chat's webhook body.
type internalPayload struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Bot       bool   `json:"bot"`
}

func (a *InternalChat) Parse(body []byte) (*Message, error) {
	var p internalPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parsing internal chat payload: %w", err)
	}
	if p.UserID == "" || p.Text == "" {
		return nil, ErrNotAMessage
	}
	ts := time.Now().UTC()
	if p.Timestamp > 0 {
		ts = time.Unix(p.Timestamp, 0).UTC()
	}
	return &Message{
		ChannelUserID:   p.UserID,
		ChannelUserName: p.UserName,
		MessageID:       p.MessageID,
		ThreadID:        p.ThreadID,
		Text:            p.Text,
		Timestamp:       ts,
		IsBot:           p.Bot,
	}, nil
}

func (a *InternalChat) SendReply(ctx context.Context, original *Message, text string) error {
	if a.cfg.ReplyURL == "" {
		return nil
	}
	payload := map[string]string{
		"thread_id": original.ThreadID,
		"text":      text,
	}
	return postJSON(ctx, a.cfg.ReplyURL, "", payload)
}

// Available is true in every mode; internal chat needs no egress.
func (a *InternalChat) Available(_ string) bool { return true }

func (a *InternalChat) MaxClassification() envelope.Classification { return a.maxLevel }

func (a *InternalChat) MaxMessageLength() int { return a.cfg.MaxMessageLength }

func (a *InternalChat) WebhookPath() string { return a.cfg.WebhookPath }

// postJSON delivers a JSON payload with the shared reply client. bearer,
// when set, is sent as an Authorization header.
func postJSON(ctx context.Context, url, bearer string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := replyClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("reply endpoint returned %d", resp.StatusCode)
	}
	return nil
}
