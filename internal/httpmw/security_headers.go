package httpmw

import (
	"net/http"

	"github.com/keithlinneman/contentgate/internal/guard"
)

// SecurityHeaders applies the download-policy header set to every response,
// plus baseline browser hardening. Refusal responses carry the same policy
// headers at the route level; setting them server-wide keeps pass-through
// responses consistent with refusals.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range guard.Headers() {
			w.Header().Set(k, v)
		}

		// Old Clickjacking protection - dont allow embedding in frames
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")

		// Referrer policy to control information sent in Referer header
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Prevent Adobe Flash and Acrobat from loading content
		w.Header().Set("X-Permitted-Cross-Domain-Policies", "none")

		next.ServeHTTP(w, r)
	})
}
