package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/onnwee/ethosprompt/backend/internal/logger"
)

// RequestIDHeader is the header name for request IDs
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds caller-supplied IDs before they reach logs.
const maxRequestIDLen = 128

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fallback-request-id"
	}
	return hex.EncodeToString(b)
}

// validRequestID accepts printable ASCII without spaces.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// RequestID middleware adds a unique request ID to each request.
// A well-formed incoming X-Request-ID is propagated; anything else is replaced.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = generateRequestID()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
