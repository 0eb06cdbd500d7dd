// Package auth guards the gateway admin API with HS256 JWT bearer tokens.
//
// Tokens are signed with the configured shared secret. Only HMAC signing
// methods are accepted during verification. The middleware places the
// verified subject in the request context for audit attribution.
package auth
