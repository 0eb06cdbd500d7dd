// Package envelope defines the normalized command envelope that flows
// through the gateway, the classification ladder, and the command text
// parser.
//
// An Envelope starts with only channel-provided facts. The security chain
// stamps platform identity onto it gate by gate; code downstream of the
// chain may trust those fields.
//
// Classification levels are ordered: public < internal < confidential <
// restricted. Unknown level names parse as public so misconfigured
// channels never gain a higher ceiling than they named.
package envelope
