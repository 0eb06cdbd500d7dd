// Package channel defines the adapter contract for messaging front ends
// and the built-in adapters: internal chat, Slack, and Teams.
//
// Adapters verify webhook authenticity, normalize inbound payloads into
// Message values, and deliver replies. Signature verification is
// constant-time for secret-bearing channels; the internal chat adapter is
// exempt because its traffic never leaves the platform network. Adapters
// that need internet egress report themselves unavailable in isolated
// deployments and are dropped at startup.
package channel
