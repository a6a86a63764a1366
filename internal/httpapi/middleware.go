package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// RequireSecret rejects any request that does not carry a registration
// secret matching want in the gridtypes.SecretHeader header, with HTTP
// 401 — gates the intra-cluster mutating endpoints from public traffic.
// Comparison is constant-time for equal-length values, so timing does
// not leak a matching prefix; a value of the wrong length is rejected
// immediately.
func RequireSecret(want string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(gridtypes.SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				WriteError(w, &gridtypes.UnauthorizedSecret{})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PublicRateLimit caps a public, unauthenticated endpoint at n requests
// per window per client IP — the queue's /session and
// newsessionqueuer/session endpoints are the obvious abuse targets since
// anyone can call them without a secret.
func PublicRateLimit(n int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		n, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			gridtypes.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limited",
			})
		}),
	)
}

// RequestLogger logs each request's method, path, status and duration at
// debug level — terse by design, the ambient stack's logging layer is
// for operators tailing a live process, not an audit trail.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
