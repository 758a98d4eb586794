package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
)

var largeBody = strings.Repeat(`{"title":"prompt","tags":["a","b"]},`, 100)

func bodyHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
}

func TestNegotiateEncoding(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"gzip":              "gzip",
		"gzip, deflate, br": "br",
		"br;q=0, gzip":      "gzip",
		"identity":          "",
		"gzip;q=0.5":        "gzip",
		"GZIP;q=0":          "",
		"deflate, br;q=1.0": "br",
	}
	for header, want := range tests {
		if got := negotiateEncoding(header); got != want {
			t.Errorf("negotiateEncoding(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestCompress_Brotli(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/categories", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rr := httptest.NewRecorder()
	Compress(bodyHandler(largeBody)).ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("Expected br encoding, got %q", rr.Header().Get("Content-Encoding"))
	}
	got, err := io.ReadAll(brotli.NewReader(rr.Body))
	if err != nil {
		t.Fatalf("brotli read: %v", err)
	}
	if string(got) != largeBody {
		t.Error("decoded body does not match")
	}
}

func TestCompress_Gzip(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/categories", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	Compress(bodyHandler(largeBody)).ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", rr.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	got, _ := io.ReadAll(zr)
	if string(got) != largeBody {
		t.Error("decoded body does not match")
	}
	if rr.Header().Get("Vary") != "Accept-Encoding" {
		t.Error("Expected Vary: Accept-Encoding")
	}
}

func TestCompress_SmallBodyUncompressed(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rr := httptest.NewRecorder()
	Compress(bodyHandler(`{"status":"ok"}`)).ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "" {
		t.Error("Small bodies should not be encoded")
	}
	if rr.Body.String() != `{"status":"ok"}` {
		t.Errorf("Unexpected body %q", rr.Body.String())
	}
}

func TestCompress_PreservesStatusAndNotModified(t *testing.T) {
	handler := Compress(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "br")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotModified {
		t.Errorf("Expected 304, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Encoding") != "" || rr.Body.Len() != 0 {
		t.Error("304 responses must not be encoded")
	}

	handler = Compress(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(largeBody))
	}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rr.Code)
	}
}
