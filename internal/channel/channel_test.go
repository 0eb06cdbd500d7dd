// ABOUTME: Tests for channel adapters: signature checks, parsing, mode gating
// ABOUTME: Slack HMAC vectors are computed against the adapter itself

package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icdev/cmdgate/internal/config"
	"github.com/icdev/cmdgate/internal/envelope"
)

func slackSign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSlackVerifySignature(t *testing.T) {
	a := NewSlack(&config.ChannelConfig{Secret: "sssh"})
	body := []byte(`{"type":"event_callback"}`)
	ts := "1700000000"

	r := httptest.NewRequest("POST", "/slack-webhook", nil)
	r.Header.Set("X-Slack-Request-Timestamp", ts)
	r.Header.Set("X-Slack-Signature", slackSign("sssh", ts, body))
	assert.NoError(t, a.VerifySignature(r, body))

	// Wrong secret.
	r.Header.Set("X-Slack-Signature", slackSign("wrong", ts, body))
	assert.ErrorIs(t, a.VerifySignature(r, body), ErrBadSignature)

	// Tampered body.
	r.Header.Set("X-Slack-Signature", slackSign("sssh", ts, body))
	assert.ErrorIs(t, a.VerifySignature(r, []byte("tampered")), ErrBadSignature)

	// Missing headers.
	bare := httptest.NewRequest("POST", "/slack-webhook", nil)
	assert.ErrorIs(t, a.VerifySignature(bare, body), ErrBadSignature)
}

func TestSlackParse(t *testing.T) {
	a := NewSlack(&config.ChannelConfig{BotUserID: "UBOT"})

	body := []byte(`{
		"type": "event_callback",
		"event": {
			"type": "message",
			"user": "U123",
			"text": "/status billing-api",
			"ts": "1700000000.000100",
			"thread_ts": "1699999990.000001"
		}
	}`)
	msg, err := a.Parse(body)
	require.NoError(t, err)
	assert.Equal(t, "U123", msg.ChannelUserID)
	assert.Equal(t, "/status billing-api", msg.Text)
	assert.Equal(t, "1700000000.000100", msg.MessageID)
	assert.Equal(t, "1699999990.000001", msg.ThreadID)
	assert.Equal(t, int64(1700000000), msg.Timestamp.Unix())
	assert.False(t, msg.IsBot)

	// Our own bot user is flagged for echo suppression.
	echo := []byte(`{"type":"event_callback","event":{"type":"message","user":"UBOT","text":"reply","ts":"1.2"}}`)
	msg, err = a.Parse(echo)
	require.NoError(t, err)
	assert.True(t, msg.IsBot)

	// Bot-sourced messages are flagged too.
	bot := []byte(`{"type":"event_callback","event":{"type":"message","bot_id":"B9","text":"x","ts":"1.2"}}`)
	msg, err = a.Parse(bot)
	require.NoError(t, err)
	assert.True(t, msg.IsBot)

	// URL verification handshakes are not messages.
	_, err = a.Parse([]byte(`{"type":"url_verification","challenge":"abc"}`))
	assert.ErrorIs(t, err, ErrNotAMessage)
}

func TestTeamsVerifySignature(t *testing.T) {
	a := NewTeams(&config.ChannelConfig{Secret: "token123"})

	r := httptest.NewRequest("POST", "/teams-webhook", nil)
	r.Header.Set("Authorization", "Bearer token123")
	assert.NoError(t, a.VerifySignature(r, nil))

	r.Header.Set("Authorization", "Bearer nope")
	assert.ErrorIs(t, a.VerifySignature(r, nil), ErrBadSignature)

	r.Header.Del("Authorization")
	assert.ErrorIs(t, a.VerifySignature(r, nil), ErrBadSignature)
}

func TestTeamsParse(t *testing.T) {
	a := NewTeams(&config.ChannelConfig{})

	body := []byte(`{
		"type": "message",
		"id": "1234",
		"from": {"id": "29:abc", "name": "Dana"},
		"conversation": {"id": "19:thread"},
		"text": "/logs billing-api",
		"timestamp": "2026-08-28T10:00:00Z"
	}`)
	msg, err := a.Parse(body)
	require.NoError(t, err)
	assert.Equal(t, "29:abc", msg.ChannelUserID)
	assert.Equal(t, "Dana", msg.ChannelUserName)
	assert.Equal(t, "19:thread", msg.ThreadID)
	assert.Equal(t, 2026, msg.Timestamp.Year())

	_, err = a.Parse([]byte(`{"type":"conversationUpdate"}`))
	assert.ErrorIs(t, err, ErrNotAMessage)
}

func TestInternalChatParse(t *testing.T) {
	a := NewInternalChat(&config.ChannelConfig{MaxClassification: "restricted"})

	msg, err := a.Parse([]byte(`{"user_id":"alice","user_name":"Alice","text":"/scan billing-api","message_id":"m1","timestamp":1700000000}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.ChannelUserID)
	assert.Equal(t, int64(1700000000), msg.Timestamp.Unix())

	// Internal chat is signature-exempt and carries the top ceiling.
	assert.NoError(t, a.VerifySignature(httptest.NewRequest("POST", "/internal-webhook", nil), nil))
	assert.Equal(t, envelope.ClassRestricted, a.MaxClassification())

	_, err = a.Parse([]byte(`{"user_id":"","text":""}`))
	assert.ErrorIs(t, err, ErrNotAMessage)
}

func TestBuildAdaptersModeGating(t *testing.T) {
	cfg := &config.ChannelsConfig{
		Internal: config.ChannelConfig{Enabled: true, WebhookPath: "/internal-webhook"},
		Slack:    config.ChannelConfig{Enabled: true, Secret: "s", WebhookPath: "/slack-webhook"},
		Teams:    config.ChannelConfig{Enabled: true, Secret: "t", WebhookPath: "/teams-webhook"},
	}

	connected := BuildAdapters(cfg, config.ModeConnected)
	require.Len(t, connected, 3)

	// Isolated deployments drop every adapter that needs internet egress.
	isolated := BuildAdapters(cfg, config.ModeIsolated)
	require.Len(t, isolated, 1)
	assert.Equal(t, "internal", isolated[0].Name())
}

func TestParseSlackTSFallback(t *testing.T) {
	before := time.Now().Add(-time.Second)
	got := parseSlackTS("garbage")
	assert.True(t, got.After(before), "malformed timestamps fall back to now")
}
