// ABOUTME: CommandEnvelope and classification types shared across the pipeline
// ABOUTME: One envelope represents a single inbound command request from any channel

package envelope

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Classification is a sensitivity tier assigned to command output and to a
// channel's maximum permitted exposure.
type Classification int

// Classification levels, lowest to highest.
const (
	ClassPublic Classification = iota
	ClassInternal
	ClassConfidential
	ClassRestricted
)

// classificationNames maps levels to their wire/config names.
var classificationNames = map[Classification]string{
	ClassPublic:       "public",
	ClassInternal:     "internal",
	ClassConfidential: "confidential",
	ClassRestricted:   "restricted",
}

// String returns the config name for a classification level.
func (c Classification) String() string {
	if name, ok := classificationNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseClassification converts a config string to a Classification.
// Unknown strings resolve to ClassPublic, the most restrictive channel
// ceiling, so a typo in config can never widen exposure.
func ParseClassification(s string) Classification {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "internal":
		return ClassInternal
	case "confidential":
		return ClassConfidential
	case "restricted":
		return ClassRestricted
	default:
		return ClassPublic
	}
}

// GateResult records the outcome of one security gate.
type GateResult struct {
	Gate   string
	Passed bool
	Reason string
}

// Envelope is the channel-agnostic representation of one inbound command.
// It is created fresh per request by a channel adapter, mutated only by the
// security chain, and discarded after the reply is sent.
type Envelope struct {
	ID string

	// Source (display name is diagnostic only, never used for authorization)
	Channel         string
	ChannelUserID   string
	ChannelUserName string
	MessageID       string
	ThreadID        string

	// Content
	RawText   string
	Command   string
	Args      map[string]string
	ProjectID string

	// Security context, populated by gates as they pass. No field here may
	// be trusted before the gate that populates it has returned success.
	BindingID string
	UserID    string
	TenantID  string
	Role      string

	// Metadata
	Timestamp time.Time
	Signature string
	IsBot     bool

	// Gate results in execution order, for audit and rejection messages.
	gateResults []GateResult
}

// New creates an envelope with a generated ID and the current timestamp.
func New(channel, channelUserID, rawText string) *Envelope {
	return &Envelope{
		ID:            uuid.New().String(),
		Channel:       channel,
		ChannelUserID: channelUserID,
		RawText:       rawText,
		Args:          make(map[string]string),
		Timestamp:     time.Now().UTC(),
	}
}

// RecordGate appends a gate outcome to the envelope's ordered result list.
func (e *Envelope) RecordGate(gate string, passed bool, reason string) {
	e.gateResults = append(e.gateResults, GateResult{Gate: gate, Passed: passed, Reason: reason})
}

// GateResults returns the recorded gate outcomes in execution order.
func (e *Envelope) GateResults() []GateResult {
	return e.gateResults
}

// GateResultMap returns gate outcomes keyed by gate name, for audit detail.
func (e *Envelope) GateResultMap() map[string]bool {
	m := make(map[string]bool, len(e.gateResults))
	for _, r := range e.gateResults {
		m[r.Gate] = r.Passed
	}
	return m
}
