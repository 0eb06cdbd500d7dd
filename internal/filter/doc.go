// Package filter applies classification-aware redaction to command output
// before it leaves the platform boundary.
//
// Output is scanned for classification markers; when the detected level
// exceeds the destination channel's ceiling the entire body is replaced
// with a redaction notice pointing at the internal viewing surface.
// Partial redaction is never attempted, and filtering never raises a
// result's classification above what the output actually carries.
package filter
