package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig allows the local frontend dev servers. Client hint headers
// are not CORS-safelisted, so they are allowed explicitly for cross-origin fetches.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", RequestIDHeader,
			"ECT", "Downlink", "Device-Memory", "Save-Data",
		},
		ExposedHeaders: []string{"ETag", RequestIDHeader},
		MaxAge:         600,
	}
}

// CORS returns a middleware handler that adds CORS headers.
// A nil config uses DefaultCORSConfig.
func CORS(config *CORSConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCORSConfig()
	}
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	exposed := strings.Join(config.ExposedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			allowed := origin != "" && isOriginAllowed(origin, config.AllowedOrigins)
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if config.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					if methods != "" {
						w.Header().Set("Access-Control-Allow-Methods", methods)
					}
					if headers != "" {
						w.Header().Set("Access-Control-Allow-Headers", headers)
					}
					if config.MaxAge > 0 {
						w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed && exposed != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposed)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed supports exact origins, "*" and "*.example.com" patterns.
func isOriginAllowed(origin string, allowed []string) bool {
	for _, pattern := range allowed {
		switch {
		case pattern == "*", pattern == origin:
			return true
		case strings.HasPrefix(pattern, "*."):
			if strings.HasSuffix(origin, pattern[1:]) {
				return true
			}
		}
	}
	return false
}
