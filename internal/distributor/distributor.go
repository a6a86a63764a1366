package distributor

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/rs/zerolog"

	"github.com/browsergrid/gridcore/internal/eventbus"
	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/metrics"
	"github.com/browsergrid/gridcore/internal/sessionmap"
)

const (
	minHealthCheckInterval = 10 * time.Second
	defaultPurgeInterval   = 30 * time.Second
	defaultTickInterval    = time.Second
)

// Config carries everything New needs beyond the bus, queue and session
// map. HealthCheckInterval is read via a function so a config hot-reload
// can change the health-check cadence without reconstructing the
// distributor; PurgeAfter is a plain value fixed at construction.
type Config struct {
	Secret              string
	HealthCheckInterval func() time.Duration
	PurgeAfter          time.Duration
	TickInterval        time.Duration
	PurgeScanInterval   time.Duration
	Selector            SlotSelector
}

// Distributor is the grid's single writer: it holds the Grid Model (the
// last-known status of every node, augmented with heartbeat timestamps)
// behind a fair read-write lock, and runs the single-threaded scheduling
// tick that matches queued requests to free slots.
type Distributor struct {
	log zerolog.Logger
	bus eventbus.Bus

	queue    QueueClient
	sessions sessionmap.Map
	clock    clock.Clock
	secret   string
	selector SlotSelector

	healthInterval func() time.Duration
	purgeAfter     time.Duration
	purgeScan      time.Duration
	tickInterval   time.Duration

	remoteClient *gridtypes.Client

	mu      sync.RWMutex
	nodes   map[gridtypes.NodeID]*nodeEntry
	pending []gridtypes.RequestID

	wake chan struct{}

	unsubStatus  func()
	unsubHB      func()
	unsubReq     func()
	unsubDrained func()

	wg sync.WaitGroup
}

// New constructs a Distributor and subscribes it to the topics it needs
// to learn about nodes and requests without a direct reference to
// whatever published them.
func New(log zerolog.Logger, bus eventbus.Bus, queue QueueClient, sessions sessionmap.Map, clk clock.Clock, cfg Config) *Distributor {
	selector := cfg.Selector
	if selector == nil {
		selector = DefaultSlotSelector{}
	}
	healthInterval := cfg.HealthCheckInterval
	if healthInterval == nil {
		healthInterval = func() time.Duration { return 5 * minHealthCheckInterval }
	}
	purgeAfter := cfg.PurgeAfter
	if purgeAfter <= 0 {
		purgeAfter = 3 * minHealthCheckInterval
	}
	purgeScan := cfg.PurgeScanInterval
	if purgeScan <= 0 {
		purgeScan = defaultPurgeInterval
	}
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}

	d := &Distributor{
		log:            log.With().Str("component", "distributor").Logger(),
		bus:            bus,
		queue:          queue,
		sessions:       sessions,
		clock:          clk,
		secret:         cfg.Secret,
		selector:       selector,
		healthInterval: healthInterval,
		purgeAfter:     purgeAfter,
		purgeScan:      purgeScan,
		tickInterval:   tickInterval,
		remoteClient:   gridtypes.NewClient(cfg.Secret),
		nodes:          make(map[gridtypes.NodeID]*nodeEntry),
		wake:           make(chan struct{}, 1),
	}

	d.unsubStatus = bus.Subscribe(eventbus.TopicNodeStatus, d.onNodeStatus)
	d.unsubHB = bus.Subscribe(eventbus.TopicNodeHeartBeat, d.onHeartBeat)
	d.unsubReq = bus.Subscribe(eventbus.TopicNewSessionRequest, d.onNewSessionRequest)
	d.unsubDrained = bus.Subscribe(eventbus.TopicNodeDrainComplete, d.onDrainComplete)

	return d
}

// Run starts the scheduling tick loop and the dead-node purge loop. Both
// loops stop when ctx is cancelled, and any in-flight tick finishes first
// (the tick itself is non-interruptible). Run then keeps waiting for every
// per-node health-check goroutine, which ends only when its node is
// removed or purged or Close is called.
func (d *Distributor) Run(ctx context.Context) {
	d.wg.Add(2)
	go d.runTickLoop(ctx)
	go d.runPurgeLoop(ctx)
	d.wg.Wait()
}

// Close unsubscribes the distributor from the bus and cancels every
// per-node health check. It does not stop Run; cancel Run's context
// first.
func (d *Distributor) Close() {
	d.unsubStatus()
	d.unsubHB()
	d.unsubReq()
	d.unsubDrained()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.nodes {
		if e.healthCancel != nil {
			e.healthCancel()
		}
	}
}

func (d *Distributor) runTickLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		case <-d.wake:
			d.tick(ctx)
		}
	}
}

func (d *Distributor) runPurgeLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.purgeScan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.purgeDeadNodes()
		}
	}
}

func (d *Distributor) requestWake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// WakeScheduler nudges the scheduling tick to run before its next
// timer fires. It is exported for the eventbus.Notifier's HTTP
// receiver: a queuer in a split deployment cannot publish onto this
// distributor's in-process bus directly, so it calls this instead of
// relying on onNewSessionRequest.
func (d *Distributor) WakeScheduler() {
	d.requestWake()
}

// Register admits a node directly into the grid model, bypassing the
// event-derived discovery path: an embedded, in-process node, or a
// RemoteHandle built by the HTTP registration endpoint. Either way the
// node is marked local and so is exempt from purging. Re-registering an
// already-known NodeId is a no-op.
func (d *Distributor) Register(ctx context.Context, handle NodeHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := handle.ID()
	if _, exists := d.nodes[id]; exists {
		return nil
	}

	status, err := handle.Status(ctx)
	if err != nil {
		return err
	}

	d.addLocked(id, handle, status, true)
	return nil
}

// addLocked installs a new node into nodes, starts its health check and
// fires NodeAddedEvent. Callers must hold the write lock.
func (d *Distributor) addLocked(id gridtypes.NodeID, handle NodeHandle, status gridtypes.NodeStatus, local bool) {
	ctx, cancel := context.WithCancel(context.Background())
	entry := &nodeEntry{
		handle:        handle,
		status:        status,
		lastHeartbeat: d.clock.Now(),
		local:         local,
		reserved:      make(map[gridtypes.SlotID]bool),
		healthCancel:  cancel,
	}
	d.nodes[id] = entry

	d.wg.Add(1)
	go d.runHealthCheck(ctx, id, handle)

	d.updateNodeGaugesLocked()
	d.bus.Publish(eventbus.TopicNodeAdded, eventbus.NodeAddedEvent{NodeID: id, URI: handle.URI()})
}

// updateNodeGaugesLocked refreshes the two node-count gauges from the
// current model. Callers must hold at least the read lock.
func (d *Distributor) updateNodeGaugesLocked() {
	up := 0
	for _, e := range d.nodes {
		if e.status.Availability != gridtypes.Down {
			up++
		}
	}
	metrics.DistributorNodesTotal.Set(float64(len(d.nodes)))
	metrics.DistributorNodesUp.Set(float64(up))
}

func (d *Distributor) checkSecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), []byte(d.secret)) == 1
}

// onNodeStatus handles both initial discovery (the NodeId is not yet
// known) and ongoing status refreshes for an already-known node.
func (d *Distributor) onNodeStatus(payload any) {
	evt, ok := payload.(eventbus.NodeStatusEvent)
	if !ok {
		return
	}
	if !d.checkSecret(evt.Secret) {
		d.log.Warn().Str("node_id", string(evt.Status.NodeID)).Msg("rejected NodeStatusEvent: secret mismatch")
		return
	}

	d.mu.Lock()
	id := evt.Status.NodeID
	if entry, exists := d.nodes[id]; exists {
		entry.status = evt.Status
		entry.lastHeartbeat = d.clock.Now()
		d.updateNodeGaugesLocked()
	} else {
		handle := NewRemoteHandle(d.remoteClient, id, evt.Status.URI)
		d.addLocked(id, handle, evt.Status, false)
	}
	d.mu.Unlock()

	d.requestWake()
}

// onHeartBeat admits a node on its first heartbeat if no status has
// arrived for it yet, and otherwise just refreshes lastHeartbeat — unless
// the heartbeat is older than the one already recorded, in which case it
// is dropped as out-of-order.
func (d *Distributor) onHeartBeat(payload any) {
	evt, ok := payload.(eventbus.NodeHeartBeatEvent)
	if !ok {
		return
	}
	if !d.checkSecret(evt.Secret) {
		d.log.Warn().Str("node_id", string(evt.NodeID)).Msg("rejected NodeHeartBeatEvent: secret mismatch")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.nodes[evt.NodeID]
	if !exists {
		handle := NewRemoteHandle(d.remoteClient, evt.NodeID, evt.URI)
		status := gridtypes.NodeStatus{NodeID: evt.NodeID, URI: evt.URI}
		d.addLocked(evt.NodeID, handle, status, false)
		d.nodes[evt.NodeID].lastHeartbeat = evt.At
		return
	}

	if evt.At.After(entry.lastHeartbeat) {
		entry.lastHeartbeat = evt.At
	}
}

func (d *Distributor) onNewSessionRequest(payload any) {
	evt, ok := payload.(eventbus.NewSessionRequestEvent)
	if !ok {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, evt.RequestID)
	d.mu.Unlock()
	d.requestWake()
}

func (d *Distributor) onDrainComplete(payload any) {
	evt, ok := payload.(eventbus.NodeDrainCompleteEvent)
	if !ok {
		return
	}
	d.Remove(evt.NodeID)
}

// Drain marks nodeId DRAINING in the model — which hides it from Status
// and, because the tick skips candidate slots on DRAINING nodes, stops
// new reservations on it immediately — then asks the node
// itself to drain. The node is fully removed from the model once
// NodeDrainComplete arrives.
func (d *Distributor) Drain(ctx context.Context, nodeID gridtypes.NodeID) error {
	d.mu.Lock()
	entry, ok := d.nodes[nodeID]
	if !ok {
		d.mu.Unlock()
		return &NoSuchNode{NodeID: nodeID}
	}
	entry.status.Availability = gridtypes.Draining
	handle := entry.handle
	d.mu.Unlock()

	return handle.Drain(ctx)
}

// Remove drops nodeId from the model and cancels its health check. It is
// used both for the explicit remove operation and as the NodeDrainComplete
// handler's cleanup step.
func (d *Distributor) Remove(nodeID gridtypes.NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.nodes[nodeID]
	if !ok {
		return
	}
	if entry.healthCancel != nil {
		entry.healthCancel()
	}
	delete(d.nodes, nodeID)
	d.updateNodeGaugesLocked()
}

// Status implements the Distributor.status operation. Draining nodes are
// omitted: they are leaving the cluster and should not be offered to
// clients inspecting the grid, even though they remain in the internal
// model until NodeDrainComplete arrives.
func (d *Distributor) Status() []gridtypes.NodeStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]gridtypes.NodeStatus, 0, len(d.nodes))
	for _, e := range d.nodes {
		if e.status.Availability == gridtypes.Draining {
			continue
		}
		out = append(out, e.status)
	}
	return out
}

// Ready implements Distributor.ready: ready when both the event bus and
// the session map report ready, probed in parallel and combined with a
// logical AND.
func (d *Distributor) Ready(ctx context.Context) bool {
	var busReady, mapReady bool
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		busReady = d.bus.Ready(ctx)
	}()
	go func() {
		defer wg.Done()
		mapReady = d.sessions.Ready(ctx)
	}()
	wg.Wait()
	return busReady && mapReady
}

// availableNodesLocked snapshots the model filtered to availability != DOWN.
// Callers must hold at least the read lock.
func (d *Distributor) availableNodesLocked() []gridtypes.NodeStatus {
	out := make([]gridtypes.NodeStatus, 0, len(d.nodes))
	for _, e := range d.nodes {
		if e.status.Availability == gridtypes.Down {
			continue
		}
		out = append(out, e.status)
	}
	return out
}

func anyHasCapacity(nodes []gridtypes.NodeStatus) bool {
	for _, n := range nodes {
		if len(n.Slots) > n.UsedSlots() {
			return true
		}
	}
	return false
}

// tick runs one scheduling pass: walk the pending id list from the head,
// skipping any id the queue no longer recognizes (already timed out or
// claimed elsewhere), until one yields a request still in the queue —
// then rank candidate slots across every one of its capability choices
// and attempt reservations top-down. A candidate whose slot turns out to
// already be taken (a structural mismatch against the snapshot —
// impossible within a single process holding the write lock for the
// whole tick, but meaningful if nodes are shared across distributor
// processes) is skipped in favor of the next one. A failure returned by
// node.newSession itself is semantic, not structural, and is terminal
// for this tick's request: it is converted to a head-retry or a
// rejection, never retried against a different candidate in the same
// tick.
func (d *Distributor) tick(ctx context.Context) {
	startedAt := d.clock.Now()
	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		metrics.DistributorTickDuration.Observe(d.clock.Now().Sub(startedAt).Seconds())
	}()

	if len(d.pending) == 0 {
		return
	}

	available := d.availableNodesLocked()
	if !anyHasCapacity(available) {
		return
	}

	for len(d.pending) > 0 {
		reqID := d.pending[0]
		d.pending = d.pending[1:]

		req, ok, err := d.queue.Remove(d.secret, reqID)
		if err != nil {
			d.log.Error().Err(err).Str("request_id", string(reqID)).Msg("queue.remove failed during tick")
			continue
		}
		if !ok {
			// Already timed out, retried, or claimed by another
			// scheduler: this pending id is stale, not a candidate to
			// stall the tick on. Try the next one.
			continue
		}

		d.scheduleOne(ctx, req, available)
		return
	}
}

// scheduleOne ranks candidate slots across every one of req's capability
// choices and attempts reservations top-down, committing at most one
// session per tick. Called with d.mu held.
func (d *Distributor) scheduleOne(ctx context.Context, req gridtypes.SessionRequest, available []gridtypes.NodeStatus) {
	type ranked struct {
		Candidate
		want gridtypes.Capabilities
	}
	var candidates []ranked
	for _, want := range req.CapabilitiesChoices {
		for _, c := range d.selector.Select(available, want) {
			candidates = append(candidates, ranked{Candidate: c, want: want})
		}
	}

	for _, rc := range candidates {
		entry, ok := d.nodes[rc.NodeID]
		if !ok || entry.status.Availability == gridtypes.Draining {
			continue
		}
		idx := slotIndex(entry.status.Slots, rc.SlotID)
		if idx < 0 || entry.status.Slots[idx].HasSession() || entry.reserved[rc.SlotID] {
			continue
		}

		entry.reserved[rc.SlotID] = true
		metrics.DistributorReservationsTotal.Inc()

		resp, err := entry.handle.NewSession(ctx, gridtypes.CreateSessionRequest{
			RequestID:    req.RequestID,
			Capabilities: rc.want,
			Dialects:     req.Dialects,
		})

		delete(entry.reserved, rc.SlotID)

		if err == nil {
			if mapErr := d.sessions.Add(ctx, resp.SessionID, entry.handle.URI()); mapErr != nil {
				d.log.Error().Err(mapErr).Str("session_id", string(resp.SessionID)).Msg("session map add failed, rolling back session")
				if stopErr := entry.handle.StopSession(ctx, resp.SessionID); stopErr != nil {
					d.log.Error().Err(stopErr).Str("session_id", string(resp.SessionID)).Msg("failed to roll back session on node after session map add failure")
				}
				// The slot's session field was never set, so the
				// invariant that a non-empty session field implies a
				// session map binding holds even on this path.
				d.failRequest(req, &gridtypes.RetryableRequest{Reason: "session map unavailable: " + mapErr.Error()})
				return
			}

			entry.status.Slots[idx].Session = &resp.SessionID
			entry.status.Slots[idx].LastStarted = d.clock.Now()
			metrics.DistributorSessionsCreatedTotal.Inc()
			d.bus.Publish(eventbus.TopicNewSessionResponse, eventbus.NewSessionResponseEvent{RequestID: req.RequestID, Response: resp})
			return
		}

		d.failRequest(req, err)
		return
	}

	// Every candidate was structurally unavailable by the time we got to
	// it (or there were none at all): treat it the same as a retryable
	// failure from the node itself.
	d.failRequest(req, &gridtypes.RetryableRequest{Reason: "no free slot matches the requested capabilities"})
}

func (d *Distributor) failRequest(req gridtypes.SessionRequest, err error) {
	var retryable *gridtypes.RetryableRequest
	var transport *gridtypes.Transport
	if errors.As(err, &retryable) || errors.As(err, &transport) {
		if d.queue.RetryAdd(d.secret, req) {
			return
		}
	}
	d.bus.Publish(eventbus.TopicNewSessionRejected, eventbus.NewSessionRejectedEvent{RequestID: req.RequestID, Reason: err.Error()})
}

func slotIndex(slots []gridtypes.Slot, id gridtypes.SlotID) int {
	for i, s := range slots {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// runHealthCheck polls handle at d.healthInterval (clamped to a 10s
// floor), applying each result to the model under the write lock. The
// probe itself runs outside any lock, per the requirement that
// health-check I/O must not happen while the grid is blocked.
func (d *Distributor) runHealthCheck(ctx context.Context, id gridtypes.NodeID, handle NodeHandle) {
	defer d.wg.Done()
	for {
		interval := d.healthInterval()
		if interval < minHealthCheckInterval {
			interval = minHealthCheckInterval
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, interval)
		avail, _, err := handle.HealthCheck(checkCtx)
		cancel()
		if err != nil {
			avail = gridtypes.Down
			metrics.DistributorHealthCheckFailuresTotal.Inc()
		}

		d.mu.Lock()
		if entry, ok := d.nodes[id]; ok && entry.status.Availability != gridtypes.Draining {
			entry.status.Availability = avail
		}
		d.mu.Unlock()
	}
}

// purgeDeadNodes drops any non-local node whose last heartbeat is older
// than purgeAfter. Locally registered (embedded) nodes never heartbeat
// and are exempt.
func (d *Distributor) purgeDeadNodes() {
	deadline := d.clock.Now().Add(-d.purgeAfter)

	d.mu.Lock()
	var dead []gridtypes.NodeID
	for id, e := range d.nodes {
		if e.local {
			continue
		}
		if e.lastHeartbeat.Before(deadline) {
			dead = append(dead, id)
			if e.healthCancel != nil {
				e.healthCancel()
			}
		}
	}
	for _, id := range dead {
		delete(d.nodes, id)
	}
	d.updateNodeGaugesLocked()
	d.mu.Unlock()

	for _, id := range dead {
		metrics.DistributorNodesPurgedTotal.Inc()
		d.log.Warn().Str("node_id", string(id)).Msg("purging node: no heartbeat within deadline")
	}
}
