// Package middleware provides the HTTP middleware chain: request logging,
// distributed rate limiting, and the admin token guard.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminAuth returns middleware guarding the admin surface. Requests must
// carry the configured token as a Bearer token in the Authorization header
// or in the X-Admin-Token header. With an empty token the admin surface is
// disabled entirely rather than left open.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeAuthError(w, http.StatusForbidden, "admin endpoints are disabled")
				return
			}

			presented := extractToken(r)
			if presented == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing admin token")
				return
			}

			// Constant-time comparison to prevent timing attacks.
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeAuthError(w, http.StatusUnauthorized, "invalid admin token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-Admin-Token header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if key := r.Header.Get("X-Admin-Token"); key != "" {
		return strings.TrimSpace(key)
	}

	return ""
}

// writeAuthError sends an error response with a JSON body.
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
