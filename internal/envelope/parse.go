// ABOUTME: Command text parsing for inbound chat messages
// ABOUTME: Extracts the command name, key=value arguments, and target project

package envelope

import (
	"regexp"
	"strings"
)

// commandPattern matches a leading slash command: /icdev-status, /bind, etc.
var commandPattern = regexp.MustCompile(`^/([a-z][a-z0-9-]{0,63})\b`)

// ParseCommand splits raw message text into a command name, key=value
// arguments, and a positional project identifier. Returns ok=false for text
// that is not a slash command (ordinary chatter is ignored, not rejected).
func ParseCommand(raw string) (command string, args map[string]string, projectID string, ok bool) {
	text := strings.TrimSpace(raw)
	m := commandPattern.FindStringSubmatch(text)
	if m == nil {
		return "", nil, "", false
	}
	command = m[1]
	args = make(map[string]string)

	rest := strings.TrimSpace(text[len(m[0]):])
	if rest == "" {
		return command, args, "", true
	}

	for _, field := range strings.Fields(rest) {
		if key, value, found := strings.Cut(field, "="); found && key != "" {
			args[key] = value
			continue
		}
		// First bare token is the target project; later ones join the query.
		if projectID == "" {
			projectID = field
			continue
		}
		if q, exists := args["query"]; exists {
			args["query"] = q + " " + field
		} else {
			args["query"] = field
		}
	}

	return command, args, projectID, true
}
