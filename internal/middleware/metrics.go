package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/onnwee/ethosprompt/backend/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// routeName labels requests by their mux path template so IDs and slugs do not
// explode metric cardinality.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// Metrics records request counts and latencies per route. It must run inside
// the router (mux.Router.Use) so the matched route is known.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		endpoint, status := routeName(r), strconv.Itoa(rec.status)
		metrics.APIRequestDuration.WithLabelValues(endpoint, r.Method, status).Observe(time.Since(start).Seconds())
		metrics.APIRequestsTotal.WithLabelValues(endpoint, r.Method, status).Inc()
	})
}
