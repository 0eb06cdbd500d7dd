// Package config loads and validates gateway configuration from YAML.
//
// Configuration supports ${ENV_VAR} expansion for secrets and
// duration-string fields ("5m", "30s") parsed into time.Duration.
// Validate enforces deployment-mode consistency: an isolated deployment
// may not enable the tailscale listener, and every enabled external
// channel must carry a secret.
package config
