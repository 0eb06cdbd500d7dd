// ABOUTME: First-run setup commands: init writes config files, bootstrap seeds users
// ABOUTME: Both are idempotent-ish; existing files and rows are left alone

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/icdev/cmdgate/internal/config"
	"github.com/icdev/cmdgate/internal/store"
)

const configTemplate = `# cmdgate configuration
# Generated by cmdgate init

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  jwt_secret: "%s"

gateway:
  mode: "connected"
  allowlist_path: "%s"
  # full_access_url: "https://platform.internal/executions"

channels:
  internal:
    enabled: true
    max_classification: "restricted"
  slack:
    enabled: false
    secret: "${SLACK_SIGNING_SECRET}"
    max_classification: "internal"
    max_message_length: 3000
  teams:
    enabled: false
    secret: "${TEAMS_WEBHOOK_TOKEN}"
    max_classification: "internal"
    max_message_length: 4000

security:
  replay_window: "5m"
  clock_skew: "30s"
  user_rate_limit: 10
  channel_rate_limit: 30
  rate_window: "1m"
  challenge_ttl: "10m"

logging:
  level: "info"
  format: "text"
`

const allowlistTemplate = `# cmdgate command allowlist
# Commands not listed here can never be executed through the gateway.

[[commands]]
name = "status"
program = "icdev-status"
category = "read"
max_classification = "internal"
args = ["project"]

[[commands]]
name = "logs"
program = "icdev-logs"
category = "read"
max_classification = "confidential"
channels = ["internal"]
args = ["!project", "query"]

[[commands]]
name = "deploy"
program = "icdev-deploy"
category = "execute"
max_classification = "internal"
sensitive_domain = "deployment"
args = ["!project"]

[[commands]]
name = "scan"
program = "icdev-scan"
category = "execute"
max_classification = "restricted"
channels = ["internal"]
sensitive_domain = "security-scan"
args = ["!project"]
`

// runInit writes a starter config and allowlist. Existing files are never
// overwritten.
func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "cmdgate.db")
	allowlistPath := filepath.Join(filepath.Dir(configPath), "allowlist.toml")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	if _, err := os.Stat(configPath); err == nil {
		cyan.Printf("  Config already exists: %s\n", configPath)
	} else {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		content := fmt.Sprintf(configTemplate, dbPath, secret, allowlistPath)
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	}

	if _, err := os.Stat(allowlistPath); err == nil {
		cyan.Printf("  Allowlist already exists: %s\n", allowlistPath)
	} else {
		if err := os.WriteFile(allowlistPath, []byte(allowlistTemplate), 0644); err != nil {
			return fmt.Errorf("writing allowlist file: %w", err)
		}
		green.Printf("  ✓ Created allowlist: %s\n", allowlistPath)
	}

	fmt.Println()
	fmt.Println("Next: cmdgate bootstrap --user <id> --role admin, then cmdgate serve")
	return nil
}

// runBootstrap seeds the identity directory with one user so the first
// binding ceremony has someone to bind to.
func runBootstrap(ctx context.Context) error {
	userID, err := flagValue("--user", "-u")
	if err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("--user flag is required")
	}
	role, err := flagValue("--role", "-r")
	if err != nil {
		return err
	}
	if role == "" {
		role = "operator"
	}
	switch role {
	case "viewer", "developer", "operator", "admin":
	default:
		return fmt.Errorf("invalid role %q (want viewer, developer, operator, or admin)", role)
	}
	tenantID, err := flagValue("--tenant", "-t")
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	if tenantID != "" {
		if err := s.PutTenant(ctx, tenantID, true); err != nil {
			return fmt.Errorf("creating tenant: %w", err)
		}
		green.Printf("  ✓ Tenant active: %s\n", tenantID)
	}

	user := &store.DirectoryUser{
		UserID:   userID,
		Role:     role,
		TenantID: tenantID,
		Active:   true,
	}
	if err := s.PutDirectoryUser(ctx, user); err != nil {
		return fmt.Errorf("creating directory user: %w", err)
	}
	green.Printf("  ✓ Directory user: %s (%s)\n", userID, role)

	fmt.Println()
	fmt.Println("Bind a channel account by sending /bind in the channel, then verify with:")
	fmt.Printf("  POST /gateway/bind {\"action\":\"verify\",\"code\":\"<code>\",\"user_id\":%q}\n", userID)
	return nil
}
