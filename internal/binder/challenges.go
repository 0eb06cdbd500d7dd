// ABOUTME: Thread-safe in-memory store for ephemeral binding challenges
// ABOUTME: Codes are one-time, TTL-bound, and swept lazily on lookup

package binder

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// challengeCodeLength is the number of characters in a challenge code.
const challengeCodeLength = 8

// codeAlphabet is uppercase base32 without easily-confused characters.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Challenge is one pending binding ceremony. Never persisted; lost on restart.
type Challenge struct {
	Code          string
	Channel       string
	ChannelUserID string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// ChallengeStore holds pending challenges in memory. Safe for concurrent
// create/consume/expire. Expired entries are swept lazily on every lookup,
// so no background timer is needed.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

// NewChallengeStore creates an empty challenge store.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		challenges: make(map[string]*Challenge),
	}
}

// Create generates a fresh challenge code for a channel identity and stores
// it with an absolute expiry. Collisions are avoided probabilistically by
// code entropy; an existing unexpired code is never overwritten.
func (cs *ChallengeStore) Create(channel, channelUserID string, ttl time.Duration) (*Challenge, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.sweepLocked()

	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	// ~41 bits of entropy makes a live collision vanishingly unlikely, but
	// regenerating is cheap.
	for range 3 {
		if _, taken := cs.challenges[code]; !taken {
			break
		}
		if code, err = generateCode(); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	ch := &Challenge{
		Code:          code,
		Channel:       channel,
		ChannelUserID: channelUserID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	cs.challenges[code] = ch
	return ch, nil
}

// Peek looks up a live challenge without consuming it. Returns nil if the
// code is unknown or expired.
func (cs *ChallengeStore) Peek(code string) *Challenge {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.sweepLocked()
	return cs.challenges[code]
}

// Consume looks up a challenge by code and deletes it.
// Returns nil if the code is unknown or expired. A consumed code can never
// verify twice.
func (cs *ChallengeStore) Consume(code string) *Challenge {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.sweepLocked()

	ch, ok := cs.challenges[code]
	if !ok {
		return nil
	}
	delete(cs.challenges, code)
	return ch
}

// Len returns the number of unexpired pending challenges.
func (cs *ChallengeStore) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.sweepLocked()
	return len(cs.challenges)
}

// sweepLocked removes expired challenges. Must be called with mu held.
func (cs *ChallengeStore) sweepLocked() {
	now := time.Now().UTC()
	for code, ch := range cs.challenges {
		if now.After(ch.ExpiresAt) {
			delete(cs.challenges, code)
		}
	}
}

// generateCode produces a short random code from the code alphabet.
func generateCode() (string, error) {
	buf := make([]byte, challengeCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating challenge code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
