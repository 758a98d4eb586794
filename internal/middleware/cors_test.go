package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_AllowedOrigin(t *testing.T) {
	handler := CORS(&CORSConfig{AllowedOrigins: []string{"https://ethosprompt.com"}, ExposedHeaders: []string{"ETag"}})(okHandler())

	req := httptest.NewRequest("GET", "/api/categories", nil)
	req.Header.Set("Origin", "https://ethosprompt.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://ethosprompt.com" {
		t.Errorf("Expected origin to be echoed, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Expose-Headers"); got != "ETag" {
		t.Errorf("Expected exposed headers, got %q", got)
	}
	if rr.Header().Get("Vary") != "Origin" {
		t.Error("Expected Vary: Origin")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	handler := CORS(&CORSConfig{AllowedOrigins: []string{"https://ethosprompt.com"}})(okHandler())

	req := httptest.NewRequest("GET", "/api/categories", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Disallowed origin must not be echoed")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("Same request should still be served, got %d", rr.Code)
	}
}

func TestCORS_PreflightAllowsClientHints(t *testing.T) {
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	req := httptest.NewRequest("OPTIONS", "/api/categories", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
	allowed := rr.Header().Get("Access-Control-Allow-Headers")
	for _, h := range []string{"ECT", "Downlink", "Device-Memory", "Save-Data"} {
		if !strings.Contains(allowed, h) {
			t.Errorf("Expected %s in allowed headers, got %q", h, allowed)
		}
	}
	if rr.Header().Get("Access-Control-Max-Age") != "600" {
		t.Errorf("Expected max age 600, got %q", rr.Header().Get("Access-Control-Max-Age"))
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"https://a.com", []string{"*"}, true},
		{"https://a.com", []string{"https://a.com"}, true},
		{"https://app.a.com", []string{"*.a.com"}, true},
		{"https://a.com", []string{"*.a.com"}, false},
		{"https://b.com", []string{"https://a.com"}, false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, tt.allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
		}
	}
}

func TestCORS_Credentials(t *testing.T) {
	handler := CORS(&CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true})(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://x.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("Expected credentials header")
	}
}
