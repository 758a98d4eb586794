package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/ethosprompt/backend/internal/api/handlers"
	"github.com/onnwee/ethosprompt/backend/internal/apierr"
	"github.com/onnwee/ethosprompt/backend/internal/cache"
	"github.com/onnwee/ethosprompt/backend/internal/middleware"
)

// Deps are the services the router exposes.
type Deps struct {
	Catalog     handlers.CatalogService
	Caches      []cache.Cache
	DB          handlers.Pinger
	AdminToken  string
	CORS        *middleware.CORSConfig
	RateLimiter *middleware.RateLimiter // nil disables rate limiting
}

// NewRouter wires routes and middleware. Outer middleware runs in this order:
// recovery, request ID, security headers, CORS, rate limit, compression.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Metrics)

	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", handlers.Ready(d.DB)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	catalogRoutes := api.NewRoute().Subrouter()
	catalogRoutes.Use(middleware.ClientHints, middleware.ETag)
	ch := handlers.NewCatalogHandler(d.Catalog)
	catalogRoutes.HandleFunc("/categories", ch.ListCategories).Methods(http.MethodGet)
	catalogRoutes.HandleFunc("/categories/{slug}/prompts", ch.CategoryPrompts).Methods(http.MethodGet)
	catalogRoutes.HandleFunc("/prompts/{id}", ch.GetPrompt).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(adminOnly(d.AdminToken))
	ca := handlers.NewCacheAdminHandler(d.Caches...)
	admin.HandleFunc("/cache/stats", ca.GetCacheStats).Methods(http.MethodGet)
	admin.HandleFunc("/cache/invalidate", ca.InvalidateCache).Methods(http.MethodPost)
	admin.HandleFunc("/cache/keys/{key}", ca.DeleteKey).Methods(http.MethodDelete)
	admin.HandleFunc("/cache/sweep", ca.Sweep).Methods(http.MethodPost)

	var h http.Handler = r
	h = middleware.Compress(h)
	if d.RateLimiter != nil {
		h = d.RateLimiter.Limit(h)
	}
	h = middleware.CORS(d.CORS)(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RequestID(h)
	h = middleware.RecoverWithSentry(h)
	return h
}

// adminOnly requires "Authorization: Bearer <token>". Without a configured
// token the admin API is disabled.
func adminOnly(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				apierr.WriteErrorWithContext(w, r, apierr.SystemUnavailable("Admin API token not configured"))
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" {
				apierr.WriteErrorWithContext(w, r, apierr.AuthMissing(""))
				return
			}
			got, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				apierr.WriteErrorWithContext(w, r, apierr.AuthInvalid(""))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
