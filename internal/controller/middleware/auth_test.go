package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"planetoidgen/internal/auth"
)

func TestRequireAdminKey(t *testing.T) {
	keyHash := auth.HashKey("admin-key-123")

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"no bearer prefix", "admin-key-123", http.StatusUnauthorized},
		{"wrong prefix", "Basic admin-key-123", http.StatusUnauthorized},
		{"too many parts", "Bearer key1 key2", http.StatusUnauthorized},
		{"wrong key", "Bearer other-key", http.StatusUnauthorized},
		{"valid key", "Bearer admin-key-123", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := RequireAdminKey(keyHash)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/topics", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
		})
	}
}

func TestRequireAdminKey_DisabledWithoutHash(t *testing.T) {
	handler := RequireAdminKey("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusNoContent {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusNoContent)
	}
}
