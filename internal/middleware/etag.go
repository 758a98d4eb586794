package middleware

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// etagCacheTTL is how long clients may reuse a catalog response without revalidating.
	etagCacheTTL = 60 * time.Second
	// etagStaleWhileRevalidate is how long clients may serve stale content while revalidating.
	etagStaleWhileRevalidate = 300 * time.Second
)

// etagResponseWriter buffers the body so it can be hashed.
type etagResponseWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *etagResponseWriter) WriteHeader(status int) {
	w.status = status
}

func (w *etagResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

// etagMatches reports whether an If-None-Match header lists etag. Weak
// validators compare equal to their strong form.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// ETag hashes successful GET responses into an ETag and answers
// 304 Not Modified when the client already holds the same body.
func ETag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		etw := &etagResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(etw, r)

		if etw.status != http.StatusOK {
			w.WriteHeader(etw.status)
			w.Write(etw.buf.Bytes())
			return
		}

		hash := sha256.Sum256(etw.buf.Bytes())
		etag := fmt.Sprintf(`"%x"`, hash[:16])
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, stale-while-revalidate=%d",
			int(etagCacheTTL.Seconds()), int(etagStaleWhileRevalidate.Seconds())))

		if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write(etw.buf.Bytes())
	})
}
