// ABOUTME: Teams adapter using bearer-token webhook authentication
// ABOUTME: Parses bot framework message activities and replies via service URL

package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/icdev/cmdgate/internal/config"
	"github.com/icdev/cmdgate/internal/envelope"
)

// Teams serves a Microsoft Teams tenant via an outgoing-webhook style
// integration authenticated with a shared bearer token.
type Teams struct {
	cfg      *config.ChannelConfig
	maxLevel envelope.Classification
}

// NewTeams creates the Teams adapter.
func NewTeams(cfg *config.ChannelConfig) *Teams {
	return &Teams{
		cfg:      cfg,
		maxLevel: envelope.ParseClassification(cfg.MaxClassification),
	}
}

func (a *Teams) Name() string { return "teams" }

// VerifySignature checks the Authorization bearer token in constant time.
func (a *Teams) VerifySignature(r *http.Request, _ []byte) error {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ErrBadSignature
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.cfg.Secret)) != 1 {
		return ErrBadSignature
	}
	return nil
}

// teamsActivity is the subset of a bot framework activity the gateway needs.
type teamsActivity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	From struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Role    string `json:"role"`
		BotID   string `json:"botId"`
	} `json:"from"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *Teams) Parse(body []byte) (*Message, error) {
	var act teamsActivity
	if err := json.Unmarshal(body, &act); err != nil {
		return nil, fmt.Errorf("parsing teams activity: %w", err)
	}
	if act.Type != "message" || act.From.ID == "" {
		return nil, ErrNotAMessage
	}

	isBot := act.From.Role == "bot" || act.From.BotID != "" ||
		(a.cfg.BotUserID != "" && act.From.ID == a.cfg.BotUserID)

	ts := act.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Message{
		ChannelUserID:   act.From.ID,
		ChannelUserName: act.From.Name,
		MessageID:       act.ID,
		ThreadID:        act.Conversation.ID,
		Text:            act.Text,
		Timestamp:       ts.UTC(),
		IsBot:           isBot,
	}, nil
}

func (a *Teams) SendReply(ctx context.Context, original *Message, text string) error {
	if a.cfg.ReplyURL == "" {
		return nil
	}
	payload := map[string]any{
		"type": "message",
		"conversation": map[string]string{
			"id": original.ThreadID,
		},
		"replyToId": original.MessageID,
		"text":      text,
	}
	return postJSON(ctx, a.cfg.ReplyURL, a.cfg.Secret, payload)
}

// Available requires internet egress to reach Teams, so the adapter is
// dropped in isolated deployments.
func (a *Teams) Available(mode string) bool { return mode == config.ModeConnected }

func (a *Teams) MaxClassification() envelope.Classification { return a.maxLevel }

func (a *Teams) MaxMessageLength() int { return a.cfg.MaxMessageLength }

func (a *Teams) WebhookPath() string { return a.cfg.WebhookPath }
