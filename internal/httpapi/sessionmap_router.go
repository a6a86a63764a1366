package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/sessionmap"
)

type addSessionBody struct {
	URI string `json:"uri"`
}

// NewSessionMapRouter mounts the Session Map's HTTP surface:
// add/remove/get under /se/grid/sessions.
func NewSessionMapRouter(log zerolog.Logger, m sessionmap.Map, secret string) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger(log))

	r.Get("/se/grid/sessions/{sessionId}", handleSessionMapGet(m))

	locked := r.With(RequireSecret(secret))
	locked.Post("/se/grid/sessions/{sessionId}", handleSessionMapAdd(m))
	locked.Delete("/se/grid/sessions/{sessionId}", handleSessionMapRemove(m))

	MountObservability(r)
	r.Get("/readyz", handleSessionMapReady(m))

	return r
}

func handleSessionMapAdd(m sessionmap.Map) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := gridtypes.SessionID(chi.URLParam(r, "sessionId"))
		var body addSessionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			gridtypes.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
		if err := m.Add(r.Context(), id, body.URI); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSessionMapGet(m sessionmap.Map) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := gridtypes.SessionID(chi.URLParam(r, "sessionId"))
		uri, err := m.GetURI(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		gridtypes.WriteJSON(w, http.StatusOK, map[string]string{"uri": uri})
	}
}

func handleSessionMapRemove(m sessionmap.Map) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := gridtypes.SessionID(chi.URLParam(r, "sessionId"))
		if err := m.Remove(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSessionMapReady(m sessionmap.Map) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.Ready(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
