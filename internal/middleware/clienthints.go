package middleware

import (
	"net/http"

	"github.com/onnwee/ethosprompt/backend/internal/cache"
)

// acceptCH asks supporting browsers to send the hints on subsequent requests.
const acceptCH = "ECT, Downlink, Device-Memory, Save-Data"

// ClientHints stores the request's network and device hints in its context,
// where AdaptiveSet picks them up. Requests without hints are left alone so the
// cache falls back to its configured probe.
func ClientHints(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Accept-CH", acceptCH)
		h.Add("Vary", acceptCH)

		if hints := cache.ClientHintsFromRequest(r); hints.Present() {
			r = r.WithContext(cache.WithProbe(r.Context(), hints))
		}
		next.ServeHTTP(w, r)
	})
}
