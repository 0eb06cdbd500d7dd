// Package binder manages identity bindings between external channel
// accounts and internal platform users.
//
// # Binding Ceremony
//
// Binding is a two-sided proof of control:
//
//  1. The operator sends /bind in the channel; the gateway issues a short
//     one-time challenge code (proving control of the channel account).
//  2. The operator submits the code from their authenticated platform
//     session via the admin API (proving control of the platform account).
//
// Codes are held only in memory, expire after a configured TTL, and are
// consumed on first use. Admins can also provision bindings directly and
// revoke them with a recorded reason. A channel identity has at most one
// active binding; revocation keeps the row as history.
package binder
