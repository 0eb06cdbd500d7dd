// ABOUTME: Tests for JWT issue/verify and the admin HTTP middleware
// ABOUTME: Covers expiry, wrong secrets, and bearer header handling

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	v := NewJWTVerifier("secret")

	token, err := v.Generate("ops@example", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example", claims.Subject)
}

func TestVerifyRejects(t *testing.T) {
	v := NewJWTVerifier("secret")
	token, err := v.Generate("ops", time.Hour)
	require.NoError(t, err)

	// Wrong secret.
	_, err = NewJWTVerifier("other").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Garbage.
	_, err = v.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Expired.
	expired, err := v.Generate("ops", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsEmptySecret(t *testing.T) {
	// A token signed with the empty key must never pass a verifier that was
	// built without a secret.
	forged, err := NewJWTVerifier("").Generate("attacker", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTVerifier("").Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	v := NewJWTVerifier("secret")

	var gotSubject string
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No token.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/gateway/bindings", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Bad token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/gateway/bindings", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token lands the subject in the context.
	token, err := v.Generate("ops", time.Hour)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/gateway/bindings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", gotSubject)
}
