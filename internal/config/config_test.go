// ABOUTME: Tests for config loading: env expansion, durations, defaults, validation
// ABOUTME: Writes temp YAML files per case

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/cmdgate.db"
auth:
  jwt_secret: "test-jwt-secret"
gateway:
  allowlist_path: "/tmp/allowlist.toml"
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ModeConnected, cfg.Gateway.Mode)
	assert.Equal(t, DefaultExecTimeout, cfg.Gateway.ExecTimeout)
	assert.Equal(t, DefaultReplayWindow, cfg.Security.ReplayWindow)
	assert.Equal(t, DefaultClockSkew, cfg.Security.ClockSkew)
	assert.Equal(t, DefaultUserRateLimit, cfg.Security.UserRateLimit)
	assert.Equal(t, DefaultChannelRateLimit, cfg.Security.ChannelRateLimit)
	assert.Equal(t, DefaultChallengeTTL, cfg.Security.ChallengeTTL)
	assert.Equal(t, "/slack-webhook", cfg.Channels.Slack.WebhookPath)
}

func TestLoadDurationsAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_SLACK_SECRET", "sssh")

	cfg, err := Load(writeConfig(t, minimalConfig+`
channels:
  slack:
    enabled: true
    secret: "${TEST_SLACK_SECRET}"
security:
  replay_window: "2m"
  clock_skew: "10s"
`))
	require.NoError(t, err)
	assert.Equal(t, "sssh", cfg.Channels.Slack.Secret)
	assert.Equal(t, 2*time.Minute, cfg.Security.ReplayWindow)
	assert.Equal(t, 10*time.Second, cfg.Security.ClockSkew)
}

func TestLoadBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
security:
  replay_window: "five minutes"
`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing listener",
			yaml:    "database:\n  path: \"/tmp/db\"\ngateway:\n  allowlist_path: \"/tmp/a\"\n",
			wantErr: "http_addr",
		},
		{
			name:    "missing database path",
			yaml:    "server:\n  http_addr: \"localhost:1\"\ngateway:\n  allowlist_path: \"/tmp/a\"\n",
			wantErr: "database.path",
		},
		{
			name:    "missing allowlist",
			yaml:    "server:\n  http_addr: \"localhost:1\"\ndatabase:\n  path: \"/tmp/db\"\n",
			wantErr: "allowlist_path",
		},
		{
			name:    "bad mode",
			yaml:    minimalConfig + "  mode: \"airgapped\"\n",
			wantErr: "gateway.mode",
		},
		{
			name:    "tailscale in isolated mode",
			yaml:    minimalConfig + "  mode: \"isolated\"\ntailscale:\n  enabled: true\n  hostname: \"cmdgate\"\n",
			wantErr: "isolated",
		},
		{
			name:    "enabled slack without secret",
			yaml:    minimalConfig + "channels:\n  slack:\n    enabled: true\n",
			wantErr: "slack.secret",
		},
		{
			name:    "missing jwt secret",
			yaml:    "server:\n  http_addr: \"localhost:1\"\ndatabase:\n  path: \"/tmp/db\"\ngateway:\n  allowlist_path: \"/tmp/a\"\n",
			wantErr: "jwt_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
