package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/queue"
)

// NewQueueRouter mounts the Session Queue's HTTP surface. secret gates
// the three mutating endpoints; the public session-creation endpoints
// are rate-limited instead.
func NewQueueRouter(log zerolog.Logger, q *queue.Queue, secret string) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger(log))

	public := r.With(PublicRateLimit(120, time.Minute))
	public.Post("/session", handleCreateSession(q))
	public.Post("/se/grid/newsessionqueuer/session", handleCreateSession(q))
	r.Get("/se/grid/newsessionqueuer/queue", handleQueueContents(q))

	locked := r.With(RequireSecret(secret))
	locked.Post("/se/grid/newsessionqueuer/session/retry/{requestId}", handleRetryAdd(q))
	locked.Get("/se/grid/newsessionqueuer/session/{requestId}", handleDequeue(q))
	locked.Delete("/se/grid/newsessionqueuer/queue", handleClearQueue(q))

	MountObservability(r)
	r.Get("/readyz", handleQueueReady(q))

	return r
}

func handleCreateSession(q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gridtypes.SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			gridtypes.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
		if req.RequestID == "" {
			req.RequestID = gridtypes.NewRequestID()
		}

		resp, err := q.Add(r.Context(), req)
		if err != nil {
			WriteError(w, err)
			return
		}
		gridtypes.WriteJSON(w, http.StatusOK, resp)
	}
}

func handleQueueContents(q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gridtypes.WriteJSON(w, http.StatusOK, q.Contents())
	}
}

func handleRetryAdd(q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gridtypes.SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			gridtypes.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
		req.RequestID = gridtypes.RequestID(chi.URLParam(r, "requestId"))
		retried := q.RetryAdd(r.Header.Get(gridtypes.SecretHeader), req)
		gridtypes.WriteJSON(w, http.StatusOK, map[string]bool{"retried": retried})
	}
}

func handleDequeue(q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := gridtypes.RequestID(chi.URLParam(r, "requestId"))
		req, ok, err := q.Remove(r.Header.Get(gridtypes.SecretHeader), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		if !ok {
			gridtypes.WriteJSON(w, http.StatusOK, gridtypes.SessionRequest{})
			return
		}
		gridtypes.WriteJSON(w, http.StatusOK, req)
	}
}

func handleClearQueue(q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := q.Clear(r.Header.Get(gridtypes.SecretHeader))
		if err != nil {
			WriteError(w, err)
			return
		}
		gridtypes.WriteJSON(w, http.StatusOK, map[string]int{"dropped": n})
	}
}

func handleQueueReady(q *queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}
