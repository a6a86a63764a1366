package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MountObservability adds /metrics and /livez to r. /livez always
// answers 204 once the process is up; /readyz is role-specific and
// mounted by each role's own router constructor.
func MountObservability(r chi.Router) {
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
