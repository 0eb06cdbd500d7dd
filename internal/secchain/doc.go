// Package secchain implements the ordered security gate chain every
// inbound command passes before execution.
//
// # Gates
//
// Gates run in a fixed order and the chain is fail-closed: the first
// failing gate rejects the envelope and no later gate runs. Every gate
// outcome, pass or fail, is recorded on the envelope for the audit trail.
//
//  1. signature: webhook authenticity (adapter-verified; internal chat is exempt)
//  2. replay: bot authorship, timestamp freshness, duplicate message IDs
//  3. identity: channel identity must resolve to an active binding
//  4. authentication: bound user still active in the directory; tenant
//     active in multi-tenant deployments
//  5. classification: command allowlisted and its declared output level
//     within the channel's classification ceiling
//  6. authorization: command permitted on the channel and the user role
//     covers its category
//  7. rate_limit: sliding-window ceilings per identity and per channel
//  8. domain_authority: observational only, always last; records
//     sensitive-domain invocations and never rejects
//
// # Rate Limiting
//
// RateLimiter keeps a sliding window of timestamps per key. Check and
// record are a single critical section, so concurrent requests cannot
// both pass at the boundary. Rejected requests are not recorded.
package secchain
