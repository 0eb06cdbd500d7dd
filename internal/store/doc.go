// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - Binding: Durable link between a channel identity and a platform user.
//     (channel, channel_user_id) uniquely identify the active binding;
//     revoked bindings are kept as history.
//   - CommandLogEntry: One command execution with its outcome, final
//     classification, and whether output was redacted.
//   - AuditEvent: Immutable security trail entry (rejections, redactions,
//     binding changes, sensitive-domain invocations, executions).
//   - DirectoryUser: Read-side mirror of the platform identity directory,
//     consulted by the security chain's authentication gate.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") for tests.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrBindingNotFound: No binding for the given key
//   - ErrBindingExists: Channel identity already has an active binding
//
// All methods accept context.Context for cancellation support.
package store
