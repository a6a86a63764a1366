package queue

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/rs/zerolog"

	"github.com/browsergrid/gridcore/internal/eventbus"
	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/metrics"
)

// waiter is the promise kept for one blocked Add call: whichever
// component fires the terminal event for its RequestID wakes it exactly
// once.
type waiter struct {
	result chan outcome
}

type outcome struct {
	response gridtypes.CreateSessionResponse
	err      error
}

// Queue is the session request FIFO: strict insertion order except for
// retryAdd, which reinserts at the head. Add blocks its caller on a
// per-request channel that the queue itself fulfills when it observes
// the matching terminal event on the bus — satisfying "the scheduler
// eventually completes [the response] via a promise keyed by RequestId"
// without the queue and the distributor sharing a direct reference.
type Queue struct {
	log zerolog.Logger

	clock          clock.Clock
	bus            eventbus.Bus
	secret         string
	requestTimeout func() time.Duration
	retryInterval  func() time.Duration

	mu       sync.Mutex
	pending  []*gridtypes.SessionRequest
	waiters  map[gridtypes.RequestID]*waiter
	unsubRes func()
	unsubRej func()
}

// Config carries the two queue-wide timeouts. Both are read via a
// function rather than a plain field, so the queue uses whatever the
// function returns at call time. The config Holder's hot reload (see
// internal/config) changes only the secret and the health-check
// interval, so neither timeout changes on reload. RetryInterval is
// stored but not read by the queue.
type Config struct {
	RequestTimeout func() time.Duration
	RetryInterval  func() time.Duration
	Secret         string
}

// New constructs a Queue and subscribes it to the terminal-event topics
// it needs to fulfill blocked callers.
func New(log zerolog.Logger, bus eventbus.Bus, clk clock.Clock, cfg Config) *Queue {
	q := &Queue{
		log:            log.With().Str("component", "queue").Logger(),
		clock:          clk,
		bus:            bus,
		secret:         cfg.Secret,
		requestTimeout: cfg.RequestTimeout,
		retryInterval:  cfg.RetryInterval,
		waiters:        make(map[gridtypes.RequestID]*waiter),
	}
	q.unsubRes = bus.Subscribe(eventbus.TopicNewSessionResponse, q.onResponse)
	q.unsubRej = bus.Subscribe(eventbus.TopicNewSessionRejected, q.onRejected)
	return q
}

// Close unsubscribes the queue from the bus. Any still-blocked Add calls
// continue waiting for their own deadline; Close does not cancel them.
func (q *Queue) Close() {
	q.unsubRes()
	q.unsubRej()
}

func (q *Queue) checkSecret(secret string) error {
	if subtle.ConstantTimeCompare([]byte(secret), []byte(q.secret)) != 1 {
		return &gridtypes.UnauthorizedSecret{}
	}
	return nil
}

// Add enqueues request at the tail, publishes NewSessionRequestEvent,
// and blocks until a terminal event for its RequestID arrives or its
// deadline elapses.
func (q *Queue) Add(ctx context.Context, request gridtypes.SessionRequest) (gridtypes.CreateSessionResponse, error) {
	request.EnqueuedAt = q.clock.Now()
	w := &waiter{result: make(chan outcome, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, &request)
	q.waiters[request.RequestID] = w
	metrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	q.bus.Publish(eventbus.TopicNewSessionRequest, eventbus.NewSessionRequestEvent{RequestID: request.RequestID})

	timer, timerChan := q.clock.NewTimer(q.requestTimeout())
	defer timer.Stop()

	select {
	case res := <-w.result:
		metrics.QueueWaitSeconds.Observe(q.clock.Now().Sub(request.EnqueuedAt).Seconds())
		return res.response, res.err
	case <-timerChan:
		q.expire(request.RequestID)
		metrics.QueueTimeoutsTotal.Inc()
		metrics.QueueWaitSeconds.Observe(q.clock.Now().Sub(request.EnqueuedAt).Seconds())
		return gridtypes.CreateSessionResponse{}, &gridtypes.Timeout{RequestID: request.RequestID}
	case <-ctx.Done():
		q.expire(request.RequestID)
		return gridtypes.CreateSessionResponse{}, ctx.Err()
	}
}

// expire drops a request that timed out or whose caller disconnected
// from both pending and waiters, if it is still there (the distributor
// may have already claimed it via Remove).
func (q *Queue) expire(id gridtypes.RequestID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeFromPendingLocked(id)
	delete(q.waiters, id)
	metrics.QueueDepth.Set(float64(len(q.pending)))
}

// RetryAdd reinserts request at the head of the queue. It is the head
// analogue of Add: it does not create a new waiter, since the original
// caller is still blocked on the one Add created. It returns false
// (refusing the retry) once the request's deadline has elapsed, letting
// the caller fire a rejection instead.
func (q *Queue) RetryAdd(secret string, request gridtypes.SessionRequest) bool {
	if q.checkSecret(secret) != nil {
		return false
	}

	if q.clock.Now().After(request.EnqueuedAt.Add(q.requestTimeout())) {
		return false
	}

	q.mu.Lock()
	q.pending = append([]*gridtypes.SessionRequest{&request}, q.pending...)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	metrics.QueueRetriesTotal.Inc()
	q.bus.Publish(eventbus.TopicNewSessionRequest, eventbus.NewSessionRequestEvent{RequestID: request.RequestID})
	return true
}

// Remove dequeues the request with the given id, wherever it sits in
// the queue. A miss (already claimed, already timed out) is not an
// error: it returns ok=false.
func (q *Queue) Remove(secret string, id gridtypes.RequestID) (gridtypes.SessionRequest, bool, error) {
	if err := q.checkSecret(secret); err != nil {
		return gridtypes.SessionRequest{}, false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.removeFromPendingLocked(id)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	if !ok {
		return gridtypes.SessionRequest{}, false, nil
	}
	return *req, true, nil
}

func (q *Queue) removeFromPendingLocked(id gridtypes.RequestID) (*gridtypes.SessionRequest, bool) {
	for i, req := range q.pending {
		if req.RequestID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return req, true
		}
	}
	return nil, false
}

// Clear drops every pending request, failing each of their blocked Add
// calls with a typed rejection so they do not wait out their full
// timeout for nothing, and returns the number dropped.
func (q *Queue) Clear(secret string) (int, error) {
	if err := q.checkSecret(secret); err != nil {
		return 0, err
	}

	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	metrics.QueueDepth.Set(0)
	q.mu.Unlock()

	for _, req := range dropped {
		q.fulfill(req.RequestID, outcome{err: &gridtypes.SessionNotCreated{Reason: "queue cleared"}})
	}
	return len(dropped), nil
}

// Contents lists the first capability choice of every pending request,
// for observability only. Per the spec's own open question, this core
// treats every alternative in a request as equally acceptable and tried
// in order; Contents surfacing only the first is a UI simplification,
// not a statement that the rest are ignored by the scheduler.
func (q *Queue) Contents() []gridtypes.Capabilities {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]gridtypes.Capabilities, 0, len(q.pending))
	for _, req := range q.pending {
		if len(req.CapabilitiesChoices) > 0 {
			out = append(out, req.CapabilitiesChoices[0])
		} else {
			out = append(out, gridtypes.Capabilities{})
		}
	}
	return out
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) onResponse(payload any) {
	evt, ok := payload.(eventbus.NewSessionResponseEvent)
	if !ok {
		return
	}
	metrics.QueueCompletedTotal.Inc()
	q.fulfill(evt.RequestID, outcome{response: evt.Response})
}

func (q *Queue) onRejected(payload any) {
	evt, ok := payload.(eventbus.NewSessionRejectedEvent)
	if !ok {
		return
	}
	metrics.QueueRejectedTotal.Inc()
	q.fulfill(evt.RequestID, outcome{err: &gridtypes.SessionNotCreated{Reason: evt.Reason}})
}

func (q *Queue) fulfill(id gridtypes.RequestID, res outcome) {
	q.mu.Lock()
	w, ok := q.waiters[id]
	if ok {
		delete(q.waiters, id)
	}
	q.mu.Unlock()

	if !ok {
		return
	}
	w.result <- res
}
