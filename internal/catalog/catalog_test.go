// ABOUTME: Tests for command allowlist parsing and lookup
// ABOUTME: Covers validation, duplicates, channel scoping, and ceilings

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icdev/cmdgate/internal/envelope"
)

const testAllowlist = `
[[commands]]
name = "status"
program = "icdev-status"
category = "read"
max_classification = "internal"
args = ["project"]

[[commands]]
name = "deploy"
program = "icdev-deploy"
category = "execute"
max_classification = "internal"
channels = ["internal", "slack"]
sensitive_domain = "deployment"
args = ["!project"]

[[commands]]
name = "scan"
program = "icdev-scan"
category = "execute"
max_classification = "restricted"
channels = ["internal"]
args = ["!project"]
`

func TestParse(t *testing.T) {
	cat, err := Parse([]byte(testAllowlist))
	require.NoError(t, err)
	assert.Equal(t, 3, cat.Len())

	entry, err := cat.Lookup("deploy")
	require.NoError(t, err)
	assert.Equal(t, "icdev-deploy", entry.Program)
	assert.Equal(t, CategoryExecute, entry.Category)
	assert.Equal(t, "deployment", entry.SensitiveDomain)
	assert.Equal(t, envelope.ClassInternal, entry.MaxLevel())
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{
			name: "missing program",
			toml: "[[commands]]\nname = \"x\"\ncategory = \"read\"\n",
		},
		{
			name: "missing name",
			toml: "[[commands]]\nprogram = \"x\"\ncategory = \"read\"\n",
		},
		{
			name: "bad category",
			toml: "[[commands]]\nname = \"x\"\nprogram = \"x\"\ncategory = \"sudo\"\n",
		},
		{
			name: "duplicate name",
			toml: "[[commands]]\nname = \"x\"\nprogram = \"a\"\ncategory = \"read\"\n" +
				"[[commands]]\nname = \"x\"\nprogram = \"b\"\ncategory = \"read\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			assert.Error(t, err)
		})
	}
}

func TestLookupUnknownCommand(t *testing.T) {
	cat, err := Parse([]byte(testAllowlist))
	require.NoError(t, err)

	_, err = cat.Lookup("rm-rf")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestIsAllowedChannelScoping(t *testing.T) {
	cat, err := Parse([]byte(testAllowlist))
	require.NoError(t, err)

	// No channels list means every channel.
	allowed, entry := cat.IsAllowed("status", "teams")
	assert.True(t, allowed)
	require.NotNil(t, entry)

	// Explicit list scopes the command.
	allowed, _ = cat.IsAllowed("scan", "internal")
	assert.True(t, allowed)
	allowed, entry = cat.IsAllowed("scan", "slack")
	assert.False(t, allowed)
	assert.NotNil(t, entry, "entry returned even when channel is refused")

	// Unknown commands return no entry at all.
	allowed, entry = cat.IsAllowed("nope", "internal")
	assert.False(t, allowed)
	assert.Nil(t, entry)
}

func TestAllowedOnChannelAllKeyword(t *testing.T) {
	e := &Entry{Channels: []string{"all"}}
	assert.True(t, e.AllowedOnChannel("slack"))
	assert.True(t, e.AllowedOnChannel("teams"))
}
