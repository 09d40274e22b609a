package middleware

import (
	"net/http"

	"planetoidgen/internal/auth"
)

// RequireInternalAuth guards endpoints called by workers with the shared
// system secret. With no secret configured every request is rejected.
func RequireInternalAuth(systemSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if systemSecret == "" {
				http.Error(w, "Internal authentication is not configured", http.StatusUnauthorized)
				return
			}
			token, problem := bearerToken(r)
			if problem != "" {
				http.Error(w, problem, http.StatusUnauthorized)
				return
			}
			if !auth.Equal(token, systemSecret) {
				http.Error(w, "Invalid authorization token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
