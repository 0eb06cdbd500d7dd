// ABOUTME: HTTP middleware guarding the gateway admin endpoints
// ABOUTME: Requires a valid bearer token; the subject lands in the context

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

// subjectKey carries the verified token subject through the request context.
const subjectKey contextKey = "auth.subject"

// Subject returns the verified operator subject from a request context,
// or "" when the request was not authenticated.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

// Middleware wraps a handler, rejecting requests without a valid bearer
// token.
func (v *JWTVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		claims, err := v.Verify(tokenString)
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
