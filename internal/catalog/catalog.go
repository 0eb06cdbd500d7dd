// ABOUTME: Static command allowlist loaded from a TOML file at startup
// ABOUTME: Maps command names to backing programs, categories, and ceilings

package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/icdev/cmdgate/internal/envelope"
)

// Permission categories for allowlisted commands.
const (
	CategoryRead    = "read"
	CategoryExecute = "execute"
	CategoryWrite   = "write"
)

// ErrUnknownCommand is returned when a command is not in the allowlist.
var ErrUnknownCommand = errors.New("command not in allowlist")

// Entry describes one allowlisted command. Entries are static per-deployment
// configuration and never mutated at runtime.
type Entry struct {
	Name              string   `toml:"name"`
	Program           string   `toml:"program"`
	Category          string   `toml:"category"`
	MaxClassification string   `toml:"max_classification"`
	Channels          []string `toml:"channels"` // empty or ["all"] means all channels
	RequireConfirm    bool     `toml:"require_confirm"`
	SensitiveDomain   string   `toml:"sensitive_domain"` // e.g. "security-scan", "compliance", "deployment"

	// Args lists the argument fields forwarded to the program, in order.
	// Recognized fields: "project", "query", or any key from the parsed
	// argument map. Fields prefixed with "!" are required.
	Args []string `toml:"args"`
}

// MaxLevel returns the entry's output classification ceiling.
func (e *Entry) MaxLevel() envelope.Classification {
	return envelope.ParseClassification(e.MaxClassification)
}

// AllowedOnChannel reports whether the entry permits invocation from the
// named channel. An empty list or the literal "all" permits every channel.
func (e *Entry) AllowedOnChannel(channel string) bool {
	if len(e.Channels) == 0 {
		return true
	}
	for _, c := range e.Channels {
		if c == "all" || c == channel {
			return true
		}
	}
	return false
}

// Catalog is the immutable set of allowlisted commands.
type Catalog struct {
	entries map[string]*Entry
}

// catalogFile is the TOML document shape.
type catalogFile struct {
	Commands []Entry `toml:"commands"`
}

// Load reads the allowlist from a TOML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading allowlist file: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from TOML bytes, validating every entry.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing allowlist: %w", err)
	}

	entries := make(map[string]*Entry, len(file.Commands))
	for i := range file.Commands {
		e := &file.Commands[i]
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("allowlist entry %q: %w", e.Name, err)
		}
		if _, dup := entries[e.Name]; dup {
			return nil, fmt.Errorf("allowlist entry %q: duplicate command name", e.Name)
		}
		entries[e.Name] = e
	}

	return &Catalog{entries: entries}, nil
}

// validateEntry checks required fields and category values.
func validateEntry(e *Entry) error {
	if e.Name == "" {
		return errors.New("name required")
	}
	if e.Program == "" {
		return errors.New("program required")
	}
	switch e.Category {
	case CategoryRead, CategoryExecute, CategoryWrite:
	default:
		return fmt.Errorf("invalid category %q (want read, execute, or write)", e.Category)
	}
	return nil
}

// Lookup returns the entry for a command name.
// Returns ErrUnknownCommand if the command is not allowlisted.
func (c *Catalog) Lookup(command string) (*Entry, error) {
	e, ok := c.entries[command]
	if !ok {
		return nil, ErrUnknownCommand
	}
	return e, nil
}

// IsAllowed reports whether a command exists and is permitted on the channel.
// The returned entry is non-nil only when the command is known.
func (c *Catalog) IsAllowed(command, channel string) (bool, *Entry) {
	e, ok := c.entries[command]
	if !ok {
		return false, nil
	}
	return e.AllowedOnChannel(channel), e
}

// Len returns the number of allowlisted commands.
func (c *Catalog) Len() int {
	return len(c.entries)
}
