package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/ethosprompt/backend/internal/cache"
)

func TestClientHints_SetsProbe(t *testing.T) {
	var probe cache.EnvironmentProbe
	var ok bool
	handler := ClientHints(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probe, ok = cache.ProbeFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/categories", nil)
	req.Header.Set("ECT", "4g")
	req.Header.Set("Save-Data", "on")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !ok {
		t.Fatal("Expected a probe in the request context")
	}
	if probe.NetworkClass() != cache.NetworkFast || !probe.SaveDataRequested() {
		t.Errorf("Unexpected probe values: %v save-data=%v", probe.NetworkClass(), probe.SaveDataRequested())
	}
	if rr.Header().Get("Accept-CH") == "" {
		t.Error("Expected Accept-CH to be advertised")
	}
}

func TestClientHints_NoHints(t *testing.T) {
	handler := ClientHints(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := cache.ProbeFromContext(r.Context()); ok {
			t.Error("Requests without hints should not carry a probe")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}
