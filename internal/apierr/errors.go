package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/ethosprompt/backend/internal/circuitbreaker"
	"github.com/onnwee/ethosprompt/backend/internal/logger"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// AUTH_ - Authentication and authorization errors
	ErrAuthMissing ErrorCode = "AUTH_MISSING"
	ErrAuthInvalid ErrorCode = "AUTH_INVALID"

	// CATALOG_ - Category and prompt lookups
	ErrCatalogNotFound    ErrorCode = "CATALOG_NOT_FOUND"
	ErrCatalogUnavailable ErrorCode = "CATALOG_UNAVAILABLE"

	// CACHE_ - Cache administration
	ErrCacheKeyNotFound ErrorCode = "CACHE_KEY_NOT_FOUND"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemDatabase    ErrorCode = "SYSTEM_DATABASE"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"
	ErrSystemTimeout     ErrorCode = "SYSTEM_TIMEOUT"

	// VALIDATION_ - Request validation errors
	ErrValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrValidationInvalidValue ErrorCode = "VALIDATION_INVALID_VALUE"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	status    int                    // HTTP status code (not serialized)
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// AuthMissing creates an authentication missing error
func AuthMissing(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(ErrAuthMissing, message, http.StatusUnauthorized)
}

// AuthInvalid creates an invalid authentication error
func AuthInvalid(message string) *Error {
	if message == "" {
		message = "Invalid authentication credentials"
	}
	return New(ErrAuthInvalid, message, http.StatusUnauthorized)
}

// CatalogNotFound reports a missing category or prompt.
func CatalogNotFound(resourceType string) *Error {
	return New(ErrCatalogNotFound, resourceType+" not found", http.StatusNotFound).
		WithDetails(map[string]interface{}{"resource_type": resourceType})
}

// CatalogUnavailable reports that the catalog could not be read and no stale copy was cached.
func CatalogUnavailable() *Error {
	return New(ErrCatalogUnavailable, "Catalog temporarily unavailable", http.StatusServiceUnavailable)
}

// CacheKeyNotFound reports a delete of a key the cache does not hold.
func CacheKeyNotFound(key string) *Error {
	return New(ErrCacheKeyNotFound, "Cache key not found", http.StatusNotFound).
		WithDetails(map[string]interface{}{"key": key})
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemDatabase creates a database error
func SystemDatabase(message string) *Error {
	if message == "" {
		message = "Database error"
	}
	return New(ErrSystemDatabase, message, http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	if message == "" {
		message = "Service unavailable"
	}
	return New(ErrSystemUnavailable, message, http.StatusServiceUnavailable)
}

// SystemTimeout creates a system timeout error
func SystemTimeout(message string) *Error {
	if message == "" {
		message = "Request timeout"
	}
	return New(ErrSystemTimeout, message, http.StatusGatewayTimeout)
}

// ValidationMissingField creates a missing field error
func ValidationMissingField(field string) *Error {
	return New(ErrValidationMissingField, "Missing required field: "+field, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// ValidationInvalidValue creates an invalid value error
func ValidationInvalidValue(field string, message string) *Error {
	if message == "" {
		message = "Invalid value for field: " + field
	}
	return New(ErrValidationInvalidValue, message, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// FromUpstream maps a failed catalog read to an API error.
// An open breaker and a database timeout both mean the catalog is unavailable.
func FromUpstream(err error) *Error {
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return CatalogUnavailable()
	case errors.Is(err, context.DeadlineExceeded):
		return SystemTimeout("Catalog query timed out")
	default:
		return SystemDatabase("")
	}
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
