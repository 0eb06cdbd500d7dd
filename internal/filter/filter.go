// ABOUTME: Classification-aware output filter for command results
// ABOUTME: Detects embedded markers, redacts over-classified output, truncates

package filter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/icdev/cmdgate/internal/envelope"
)

// AuditSink receives redaction events. Satisfied by the store's audit log.
type AuditSink interface {
	RecordRedaction(ctx context.Context, channel, userID, command string, detected, allowed envelope.Classification) error
}

// marker pairs a literal output token with the classification it implies.
// Ordered highest first so detection reports the most restrictive match.
type marker struct {
	token string
	level envelope.Classification
}

var markers = []marker{
	{"[RESTRICTED]", envelope.ClassRestricted},
	{"CLASSIFICATION: RESTRICTED", envelope.ClassRestricted},
	{"[CONFIDENTIAL]", envelope.ClassConfidential},
	{"CLASSIFICATION: CONFIDENTIAL", envelope.ClassConfidential},
	{"[INTERNAL]", envelope.ClassInternal},
	{"CLASSIFICATION: INTERNAL", envelope.ClassInternal},
}

// Filter redacts and truncates command output for a destination channel.
type Filter struct {
	fullAccessURL string
	audit         AuditSink
	logger        *slog.Logger
}

// New creates a Filter. fullAccessURL is shown in redaction notices so the
// operator knows where to view the unfiltered result; empty omits the hint.
// audit may be nil when no sink is configured.
func New(fullAccessURL string, audit AuditSink, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{
		fullAccessURL: fullAccessURL,
		audit:         audit,
		logger:        logger.With("component", "filter"),
	}
}

// DetectClassification scans output for classification markers and returns
// the most restrictive level found. Unmarked output is public.
func DetectClassification(output string) envelope.Classification {
	for _, m := range markers {
		if strings.Contains(output, m.token) {
			return m.level
		}
	}
	return envelope.ClassPublic
}

// Result is the outcome of filtering one command output.
type Result struct {
	Output   string
	Detected envelope.Classification
	Filtered bool
}

// Apply filters output bound for a channel whose ceiling is maxLevel. When
// the detected classification exceeds the ceiling the entire body is
// replaced with a redaction notice; partial redaction is never attempted.
// The detected level is reported as-is and never raised above what the
// output actually carries.
func (f *Filter) Apply(ctx context.Context, output, channel, userID, command string, maxLevel envelope.Classification) Result {
	detected := DetectClassification(output)
	if detected <= maxLevel {
		return Result{Output: output, Detected: detected}
	}

	notice := fmt.Sprintf("Output withheld: result is classified %s, above this channel's %s ceiling.",
		detected, maxLevel)
	if f.fullAccessURL != "" {
		notice += fmt.Sprintf(" View the full result at %s", f.fullAccessURL)
	}

	if f.audit != nil {
		if err := f.audit.RecordRedaction(ctx, channel, userID, command, detected, maxLevel); err != nil {
			f.logger.Warn("redaction audit failed", "command", command, "error", err)
		}
	}
	f.logger.Info("output redacted",
		"channel", channel,
		"command", command,
		"detected", detected.String(),
		"ceiling", maxLevel.String())

	return Result{Output: notice, Detected: detected, Filtered: true}
}

// Truncate shortens output to maxLen runes, appending a notice when
// anything was cut. maxLen <= 0 disables truncation. Redaction notices are
// short enough that truncation after Apply never destroys one.
func Truncate(output string, maxLen int) string {
	if maxLen <= 0 {
		return output
	}
	runes := []rune(output)
	if len(runes) <= maxLen {
		return output
	}
	return string(runes[:maxLen]) + "\n... (output truncated)"
}

// Format renders a filtered result with its metadata footer for delivery
// back to the channel. auditID lets an operator quote the execution record
// when asking for the unredacted output.
func Format(command, projectID string, res Result, elapsedMS int64, auditID string) string {
	var sb strings.Builder
	sb.WriteString(res.Output)
	sb.WriteString("\n---\n")
	sb.WriteString(command)
	if projectID != "" {
		sb.WriteString(" · ")
		sb.WriteString(projectID)
	}
	fmt.Fprintf(&sb, " · %s · %dms", res.Detected, elapsedMS)
	if res.Filtered {
		sb.WriteString(" · redacted")
	}
	if auditID != "" {
		sb.WriteString(" · audit " + auditID)
	}
	return sb.String()
}
