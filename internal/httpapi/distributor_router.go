package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/browsergrid/gridcore/internal/distributor"
	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// sessionAdder is the subset of *queue.Queue the distributor's own
// synchronous /session endpoint needs. It exists so an all-in-one
// process can wire the same queue instance the distributor schedules
// against, without this package depending on the queue package for
// anything but that one method.
type sessionAdder interface {
	Add(ctx context.Context, request gridtypes.SessionRequest) (gridtypes.CreateSessionResponse, error)
}

// registerBody is the body of POST /se/grid/distributor/node: a remote
// node announcing itself by URI rather than being embedded in-process.
type registerBody struct {
	NodeID gridtypes.NodeID `json:"nodeId"`
	URI    string           `json:"uri"`
}

// NewDistributorRouter mounts the Distributor's HTTP surface: node
// registration and drain, the synchronous session-creation convenience
// endpoint, status, and the split-deployment notification receiver.
// queue may be nil if this process never serves the synchronous
// /session convenience endpoint.
func NewDistributorRouter(log zerolog.Logger, d *distributor.Distributor, queue sessionAdder, secret string) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger(log))

	locked := r.With(RequireSecret(secret))
	locked.Post("/se/grid/distributor/node", handleRegisterNode(d, secret))
	locked.Post("/se/grid/distributor/node/{nodeId}/drain", handleDrainNode(d))
	locked.Post("/internal/events/new-session-request", handleNewSessionRequestNotification(d))

	r.Post("/se/grid/distributor/session", handleDistributorCreateSession(queue))
	r.Get("/se/grid/distributor/status", handleDistributorStatus(d))
	MountObservability(r)
	r.Get("/readyz", handleDistributorReady(d))

	return r
}

func handleRegisterNode(d *distributor.Distributor, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body registerBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			gridtypes.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
		handle := distributor.NewRemoteHandle(gridtypes.NewClient(secret), body.NodeID, body.URI)
		if err := d.Register(r.Context(), handle); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleNewSessionRequestNotification receives eventbus.Notifier's
// best-effort webhook: a queuer running in its own process, whose local
// bus this distributor never sees, telling it a request just arrived.
// The body is otherwise unused — the notification only ever needs to
// wake the tick loop early, since the tick's own periodic poll would
// eventually pick the request up regardless.
func handleNewSessionRequestNotification(d *distributor.Distributor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.WakeScheduler()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDrainNode(d *distributor.Distributor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := gridtypes.NodeID(chi.URLParam(r, "nodeId"))
		if err := d.Drain(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDistributorStatus(d *distributor.Distributor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gridtypes.WriteJSON(w, http.StatusOK, map[string]any{"nodes": d.Status()})
	}
}

func handleDistributorReady(d *distributor.Distributor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !d.Ready(r.Context()) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDistributorCreateSession(queue sessionAdder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if queue == nil {
			gridtypes.WriteJSON(w, http.StatusNotImplemented, map[string]string{"error": "this process does not serve the synchronous session endpoint"})
			return
		}
		var req gridtypes.SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			gridtypes.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
		if req.RequestID == "" {
			req.RequestID = gridtypes.NewRequestID()
		}

		resp, err := queue.Add(r.Context(), req)
		if err != nil {
			WriteError(w, err)
			return
		}
		gridtypes.WriteJSON(w, http.StatusOK, resp)
	}
}
