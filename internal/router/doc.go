// Package router executes allowlisted commands against platform CLI tools.
//
// Programs are invoked directly with an argv built from the envelope's
// parsed arguments; user text never reaches a shell. Executions run under
// a stripped environment (PATH, HOME, LANG, TMPDIR, and ICDEV_* credential
// variables) and are bounded by the configured timeout. Every execution,
// successful or not, lands in the command log with a paired audit event.
package router
