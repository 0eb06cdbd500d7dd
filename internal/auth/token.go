// ABOUTME: HS256 JWT issue and verify for the gateway admin surface
// ABOUTME: Shared-secret tokens; subject identifies the calling operator

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token fails verification for any
	// reason: bad signature, wrong algorithm, expired, malformed.
	ErrInvalidToken = errors.New("invalid token")
)

// JWTVerifier verifies and issues admin tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates a token string. Only HMAC signing is
// accepted; an RS256 token presented against the shared secret fails.
func (v *JWTVerifier) Verify(tokenString string) (*jwt.RegisteredClaims, error) {
	// A missing secret must never degrade into "any HMAC token passes".
	if len(v.secret) == 0 {
		return nil, ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Generate issues a token for subject, valid for ttl. Used by the CLI to
// mint operator tokens for the admin endpoints.
func (v *JWTVerifier) Generate(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
