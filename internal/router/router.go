// ABOUTME: Executes allowlisted commands against the platform CLI tools
// ABOUTME: Builds argv from the parsed envelope, no shell, bounded by timeout

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/icdev/cmdgate/internal/catalog"
	"github.com/icdev/cmdgate/internal/envelope"
	"github.com/icdev/cmdgate/internal/store"
)

// ErrMissingArg is returned when a required argument field is absent.
var ErrMissingArg = errors.New("required argument missing")

// envPassthrough lists environment variables forwarded to executed
// programs. Everything else is stripped; commands get platform
// credentials, not the gateway's full environment.
var envPassthrough = []string{"PATH", "HOME", "LANG", "TMPDIR"}

// envPassthroughPrefix forwards platform credential variables.
const envPassthroughPrefix = "ICDEV_"

// ExecutionResult is the raw outcome of one command run, before output
// filtering.
type ExecutionResult struct {
	Success   bool
	Output    string
	ExitCode  int
	TimedOut  bool
	ElapsedMS int64
}

// Router runs allowlisted commands. Programs are invoked directly with a
// constructed argv; user text never reaches a shell.
type Router struct {
	store   store.Store
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Router. timeout bounds every execution.
func New(st store.Store, timeout time.Duration, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:   st,
		timeout: timeout,
		logger:  logger.With("component", "router"),
	}
}

// BuildArgs constructs the argv tail for an entry from the envelope's
// parsed arguments. Fields are emitted in the order the allowlist declares
// them; a "!"-prefixed field that resolves to empty fails the build.
func BuildArgs(entry *catalog.Entry, env *envelope.Envelope) ([]string, error) {
	var args []string
	for _, field := range entry.Args {
		name, required := strings.CutPrefix(field, "!")

		var value string
		switch name {
		case "project":
			value = env.ProjectID
		default:
			value = env.Args[name]
		}

		if value == "" {
			if required {
				return nil, fmt.Errorf("%w: %s", ErrMissingArg, name)
			}
			continue
		}
		if name == "query" {
			args = append(args, value)
		} else {
			args = append(args, "--"+name+"="+value)
		}
	}
	return args, nil
}

// Execute runs the entry's program with arguments built from the envelope.
// The run is bounded by the router timeout; stdout and stderr are captured
// together. A non-zero exit or timeout yields Success=false with whatever
// output the program produced, not an error — the caller still delivers
// and logs it.
func (r *Router) Execute(ctx context.Context, env *envelope.Envelope, entry *catalog.Entry) (*ExecutionResult, error) {
	args, err := BuildArgs(entry, env)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, entry.Program, args...)
	cmd.Env = minimalEnv()
	out, runErr := cmd.CombinedOutput()
	elapsed := time.Since(start)

	result := &ExecutionResult{
		Output:    string(out),
		ElapsedMS: elapsed.Milliseconds(),
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = -1
		result.Output += fmt.Sprintf("\n(command timed out after %s)", r.timeout)
	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			if strings.TrimSpace(result.Output) == "" {
				result.Output = fmt.Sprintf("Command exited with status %d and produced no output.", result.ExitCode)
			}
		} else {
			// Program could not be started at all.
			return nil, fmt.Errorf("running %s: %w", entry.Program, runErr)
		}
	default:
		result.Success = true
	}

	r.logger.Info("command executed",
		"envelope_id", env.ID,
		"command", env.Command,
		"program", entry.Program,
		"success", result.Success,
		"elapsed_ms", result.ElapsedMS)
	return result, nil
}

// RecordExecution persists the command log row and its paired audit event
// after output filtering has settled the final classification. Returns the
// audit id linking the two records.
func (r *Router) RecordExecution(ctx context.Context, env *envelope.Envelope, res *ExecutionResult, classification envelope.Classification, filtered bool) string {
	auditID := uuid.New().String()

	entry := &store.CommandLogEntry{
		AuditID:        auditID,
		EnvelopeID:     env.ID,
		Channel:        env.Channel,
		ChannelUserID:  env.ChannelUserID,
		UserID:         env.UserID,
		Command:        env.Command,
		ProjectID:      env.ProjectID,
		Success:        res.Success,
		Filtered:       filtered,
		Classification: classification.String(),
		ElapsedMS:      res.ElapsedMS,
	}
	if err := r.store.SaveCommandLog(ctx, entry); err != nil {
		r.logger.Error("command log write failed", "envelope_id", env.ID, "error", err)
	}

	event := &store.AuditEvent{
		ID:        auditID,
		EventType: store.AuditEventCommand,
		Actor:     env.UserID,
		Action:    env.Command,
		ProjectID: env.ProjectID,
		Detail: map[string]any{
			"channel":        env.Channel,
			"success":        res.Success,
			"filtered":       filtered,
			"classification": classification.String(),
			"elapsed_ms":     res.ElapsedMS,
			"gates":          env.GateResultMap(),
		},
	}
	if err := r.store.AppendAuditEvent(ctx, event); err != nil {
		r.logger.Warn("execution audit failed", "envelope_id", env.ID, "error", err)
	}
	return auditID
}

// minimalEnv builds the stripped environment for child processes.
func minimalEnv() []string {
	var kept []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(name, envPassthroughPrefix) {
			kept = append(kept, kv)
			continue
		}
		for _, allow := range envPassthrough {
			if name == allow {
				kept = append(kept, kv)
				break
			}
		}
	}
	return kept
}
