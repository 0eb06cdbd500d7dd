// ABOUTME: Configuration loading and parsing for cmdgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment modes. An isolated deployment has no outbound internet access
// and drops any channel adapter that requires it.
const (
	ModeConnected = "connected"
	ModeIsolated  = "isolated"
)

// Config represents the complete cmdgate configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listener address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds optional tsnet listener configuration. Only valid in
// connected mode; an isolated deployment serves plain TCP.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration for the admin endpoints.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// GatewayConfig holds gateway-wide behavior settings.
type GatewayConfig struct {
	Mode          string `yaml:"mode"`            // "connected" or "isolated"
	MultiTenant   bool   `yaml:"multi_tenant"`    // tenant must be active for the auth gate
	AllowlistPath string `yaml:"allowlist_path"`  // TOML command allowlist
	FullAccessURL string `yaml:"full_access_url"` // viewing surface named in redaction notices

	ExecTimeout    time.Duration `yaml:"-"`
	ExecTimeoutRaw string        `yaml:"exec_timeout"`
}

// ChannelConfig holds per-channel settings shared by every adapter.
type ChannelConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Secret            string `yaml:"secret"`
	WebhookPath       string `yaml:"webhook_path"`
	MaxClassification string `yaml:"max_classification"`
	MaxMessageLength  int    `yaml:"max_message_length"`
	BotUserID         string `yaml:"bot_user_id"` // our own sender id, for echo suppression
	ReplyURL          string `yaml:"reply_url"`   // provider endpoint for outbound replies
}

// ChannelsConfig holds configuration for all channel adapters.
type ChannelsConfig struct {
	Internal ChannelConfig `yaml:"internal"`
	Slack    ChannelConfig `yaml:"slack"`
	Teams    ChannelConfig `yaml:"teams"`
}

// SecurityConfig holds settings for the security chain.
type SecurityConfig struct {
	ReplayWindow    time.Duration `yaml:"-"`
	ClockSkew       time.Duration `yaml:"-"`
	ReplayWindowRaw string        `yaml:"replay_window"`
	ClockSkewRaw    string        `yaml:"clock_skew"`

	UserRateLimit    int           `yaml:"user_rate_limit"`    // calls per window per identity
	ChannelRateLimit int           `yaml:"channel_rate_limit"` // calls per window per channel
	RateWindow       time.Duration `yaml:"-"`
	RateWindowRaw    string        `yaml:"rate_window"`

	ChallengeTTL    time.Duration `yaml:"-"`
	ChallengeTTLRaw string        `yaml:"challenge_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when fields are unset.
const (
	DefaultExecTimeout      = 120 * time.Second
	DefaultReplayWindow     = 5 * time.Minute
	DefaultClockSkew        = 30 * time.Second
	DefaultRateWindow       = time.Minute
	DefaultUserRateLimit    = 10
	DefaultChannelRateLimit = 30
	DefaultChallengeTTL     = 10 * time.Minute
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills zero-valued settings with their defaults.
func (c *Config) applyDefaults() {
	if c.Gateway.Mode == "" {
		c.Gateway.Mode = ModeConnected
	}
	if c.Gateway.ExecTimeout == 0 {
		c.Gateway.ExecTimeout = DefaultExecTimeout
	}
	if c.Security.ReplayWindow == 0 {
		c.Security.ReplayWindow = DefaultReplayWindow
	}
	if c.Security.ClockSkew == 0 {
		c.Security.ClockSkew = DefaultClockSkew
	}
	if c.Security.RateWindow == 0 {
		c.Security.RateWindow = DefaultRateWindow
	}
	if c.Security.UserRateLimit == 0 {
		c.Security.UserRateLimit = DefaultUserRateLimit
	}
	if c.Security.ChannelRateLimit == 0 {
		c.Security.ChannelRateLimit = DefaultChannelRateLimit
	}
	if c.Security.ChallengeTTL == 0 {
		c.Security.ChallengeTTL = DefaultChallengeTTL
	}
	if c.Channels.Internal.WebhookPath == "" {
		c.Channels.Internal.WebhookPath = "/internal-webhook"
	}
	if c.Channels.Slack.WebhookPath == "" {
		c.Channels.Slack.WebhookPath = "/slack-webhook"
	}
	if c.Channels.Teams.WebhookPath == "" {
		c.Channels.Teams.WebhookPath = "/teams-webhook"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Gateway.AllowlistPath == "" {
		return fmt.Errorf("gateway.allowlist_path is required")
	}
	if c.Gateway.Mode != ModeConnected && c.Gateway.Mode != ModeIsolated {
		return fmt.Errorf("gateway.mode must be %q or %q", ModeConnected, ModeIsolated)
	}
	if c.Tailscale.Enabled && c.Gateway.Mode == ModeIsolated {
		return fmt.Errorf("tailscale cannot be enabled in isolated mode")
	}
	if c.Channels.Slack.Enabled && c.Channels.Slack.Secret == "" {
		return fmt.Errorf("channels.slack.secret is required when slack is enabled")
	}
	if c.Channels.Teams.Enabled && c.Channels.Teams.Secret == "" {
		return fmt.Errorf("channels.teams.secret is required when teams is enabled")
	}
	// An empty secret would let anyone sign their own admin token.
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Gateway.ExecTimeoutRaw, "exec_timeout", &cfg.Gateway.ExecTimeout},
		{cfg.Security.ReplayWindowRaw, "replay_window", &cfg.Security.ReplayWindow},
		{cfg.Security.ClockSkewRaw, "clock_skew", &cfg.Security.ClockSkew},
		{cfg.Security.RateWindowRaw, "rate_window", &cfg.Security.RateWindow},
		{cfg.Security.ChallengeTTLRaw, "challenge_ttl", &cfg.Security.ChallengeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
