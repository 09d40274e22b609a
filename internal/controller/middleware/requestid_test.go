package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"planetoidgen/internal/logger"
)

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen != "req-1" || rr.Header().Get(RequestIDHeader) != "req-1" {
		t.Errorf("expected propagated id, got ctx=%q header=%q", seen, rr.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen == "" || len(seen) > 128 || seen != rr.Header().Get(RequestIDHeader) {
		t.Errorf("expected a generated id, got %q", seen)
	}
}
