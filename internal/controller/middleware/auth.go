// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"net/http"
	"strings"

	"planetoidgen/internal/auth"
)

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. On failure problem holds the message for the client.
func bearerToken(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "Missing authorization header"
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", "Invalid authorization header"
	}
	return parts[1], ""
}

// RequireAdminKey guards the admin API. Requests must carry a bearer key whose
// SHA-256 hash equals keyHash. An empty keyHash disables the check.
func RequireAdminKey(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keyHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r)
			if problem != "" {
				http.Error(w, problem, http.StatusUnauthorized)
				return
			}
			if !auth.MatchesHash(token, keyHash) {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
