// ABOUTME: Tests for argv construction and command execution
// ABOUTME: Executes real programs (echo, sh) with the stripped environment

package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icdev/cmdgate/internal/catalog"
	"github.com/icdev/cmdgate/internal/envelope"
	"github.com/icdev/cmdgate/internal/store"
)

func newTestRouter(t *testing.T, timeout time.Duration) (*Router, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, timeout, nil), s
}

func TestBuildArgs(t *testing.T) {
	entry := &catalog.Entry{
		Name:    "logs",
		Program: "icdev-logs",
		Args:    []string{"!project", "lines", "query"},
	}

	env := envelope.New("slack", "U1", "/logs billing-api lines=50 connection refused")
	env.ProjectID = "billing-api"
	env.Args = map[string]string{"lines": "50", "query": "connection refused"}

	args, err := BuildArgs(entry, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"--project=billing-api", "--lines=50", "connection refused"}, args)
}

func TestBuildArgsOptionalOmitted(t *testing.T) {
	entry := &catalog.Entry{Args: []string{"!project", "lines"}}
	env := envelope.New("slack", "U1", "/logs billing-api")
	env.ProjectID = "billing-api"

	args, err := BuildArgs(entry, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"--project=billing-api"}, args)
}

func TestBuildArgsMissingRequired(t *testing.T) {
	entry := &catalog.Entry{Args: []string{"!project"}}
	env := envelope.New("slack", "U1", "/deploy")

	_, err := BuildArgs(entry, env)
	assert.ErrorIs(t, err, ErrMissingArg)
}

func TestExecuteSuccess(t *testing.T) {
	r, _ := newTestRouter(t, 5*time.Second)

	entry := &catalog.Entry{Name: "echo", Program: "echo", Args: []string{"project"}}
	env := envelope.New("slack", "U1", "/echo hello")
	env.Command = "echo"
	env.ProjectID = "hello"

	res, err := r.Execute(context.Background(), env, entry)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Output, "--project=hello")
	assert.GreaterOrEqual(t, res.ElapsedMS, int64(0))
}

func TestExecuteNonZeroExit(t *testing.T) {
	r, _ := newTestRouter(t, 5*time.Second)

	entry := &catalog.Entry{Name: "false", Program: "false"}
	env := envelope.New("slack", "U1", "/false")
	env.Command = "false"

	res, err := r.Execute(context.Background(), env, entry)
	require.NoError(t, err, "non-zero exit is an outcome, not an error")
	assert.False(t, res.Success)
	assert.NotZero(t, res.ExitCode)
	assert.Contains(t, res.Output, "produced no output")
}

func TestExecuteTimeout(t *testing.T) {
	r, _ := newTestRouter(t, 50*time.Millisecond)

	entry := &catalog.Entry{Name: "sleep", Program: "sleep", Args: []string{"query"}}
	env := envelope.New("slack", "U1", "/sleep")
	env.Command = "sleep"
	env.Args = map[string]string{"query": "5"}

	res, err := r.Execute(context.Background(), env, entry)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Success)
	assert.Contains(t, res.Output, "timed out")
}

func TestExecuteUnknownProgram(t *testing.T) {
	r, _ := newTestRouter(t, time.Second)

	entry := &catalog.Entry{Name: "ghost", Program: "definitely-not-a-real-binary-xyz"}
	env := envelope.New("slack", "U1", "/ghost")
	env.Command = "ghost"

	_, err := r.Execute(context.Background(), env, entry)
	assert.Error(t, err)
}

func TestRecordExecution(t *testing.T) {
	r, s := newTestRouter(t, time.Second)
	ctx := context.Background()

	env := envelope.New("slack", "U1", "/status")
	env.Command = "status"
	env.UserID = "alice"
	env.RecordGate("signature", true, "")

	res := &ExecutionResult{Success: true, Output: "ok", ElapsedMS: 12}
	auditID := r.RecordExecution(ctx, env, res, envelope.ClassInternal, true)
	require.NotEmpty(t, auditID)

	entries, err := s.ListCommandLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, auditID, entries[0].AuditID)
	assert.Equal(t, "alice", entries[0].UserID)
	assert.True(t, entries[0].Filtered)
	assert.Equal(t, "internal", entries[0].Classification)

	events, err := s.ListAuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, auditID, events[0].ID)
	assert.Equal(t, store.AuditEventCommand, events[0].EventType)
}

func TestMinimalEnv(t *testing.T) {
	t.Setenv("ICDEV_TOKEN", "secret")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "leaky")

	kept := minimalEnv()
	joined := ""
	for _, kv := range kept {
		joined += kv + "\n"
	}
	assert.Contains(t, joined, "ICDEV_TOKEN=secret")
	assert.NotContains(t, joined, "AWS_SECRET_ACCESS_KEY")
}
