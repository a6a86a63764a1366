package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/node"
)

// NewNodeRouter mounts a Node's HTTP surface: newSession,
// executeWebDriverCommand, status, healthcheck, drain. secret gates
// drain only — newSession is called by the distributor over the same
// trust boundary as node registration, but drain is the one
// destructive operation exposed here.
func NewNodeRouter(log zerolog.Logger, n *node.Node, secret string) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger(log))

	r.Post("/session", handleNodeNewSession(n))
	r.Get("/status", handleNodeStatus(n))
	r.Get("/healthz", handleNodeHealthCheck(n))
	r.Handle("/session/{sessionId}/*", handleNodeWebDriverCommand(n))
	r.Delete("/session/{sessionId}", handleNodeStopSession(n))

	r.With(RequireSecret(secret)).Post("/se/grid/node/drain", handleNodeDrain(n))

	MountObservability(r)

	return r
}

func handleNodeNewSession(n *node.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gridtypes.CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			gridtypes.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
		resp, err := n.NewSession(r.Context(), req)
		if err != nil {
			WriteError(w, err)
			return
		}
		gridtypes.WriteJSON(w, http.StatusOK, resp)
	}
}

func handleNodeStatus(n *node.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gridtypes.WriteJSON(w, http.StatusOK, n.Status())
	}
}

func handleNodeHealthCheck(n *node.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		availability, message := n.HealthCheck(r.Context())
		gridtypes.WriteJSON(w, http.StatusOK, map[string]string{
			"availability": string(availability),
			"message":      message,
		})
	}
}

func handleNodeDrain(n *node.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n.Drain()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleNodeStopSession(n *node.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := gridtypes.SessionID(chi.URLParam(r, "sessionId"))
		if err := n.Stop(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleNodeWebDriverCommand forwards everything under
// /session/{sessionId}/* to the underlying driver session verbatim,
// carrying the upstream status code and body through unchanged.
func handleNodeWebDriverCommand(n *node.Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := gridtypes.SessionID(chi.URLParam(r, "sessionId"))
		path := chi.URLParam(r, "*")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			gridtypes.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
			return
		}

		status, respBody, err := n.ExecuteWebDriverCommand(r.Context(), id, r.Method, "/"+path, body)
		if err != nil {
			WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(respBody)
	}
}
