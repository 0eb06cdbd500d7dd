// Package gateway assembles the service: channel webhook routes, the
// authenticated admin API, and the listeners.
//
// # Webhook Pipeline
//
// Each enabled adapter gets one webhook route. An inbound request is
// verified, parsed, wrapped in an envelope, evaluated by the security
// chain, executed, filtered, and answered. Providers retry on non-2xx,
// so every pipeline outcome returns 200 with a JSON status body; the one
// exception is a hard 401 for requests that fail signature verification,
// which get no pipeline behavior to observe.
//
// # Listeners
//
// The gateway serves plain HTTP on server.http_addr and, in connected
// deployments, optionally joins a tailnet via tsnet and serves TLS inside
// it. Both listeners share one handler.
package gateway
