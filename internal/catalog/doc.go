// Package catalog loads and serves the static command allowlist.
//
// The allowlist is a TOML file mapping command names to backing programs,
// permission categories, classification ceilings, and argument schemas.
// It is loaded once at startup and never mutated; changing it requires a
// restart, which keeps the approved surface reviewable as configuration.
package catalog
