package node

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/browsergrid/gridcore/internal/eventbus"
	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// slotState is the node-local bookkeeping for one slot, kept separate
// from gridtypes.Slot so a slot can be marked claimed (a newSession is
// in flight for it) without yet having a SessionID to publish in
// status snapshots.
type slotState struct {
	slot    gridtypes.Slot
	claimed bool
	handle  SessionHandle
}

// Node owns a fixed set of slots. Deciding which slot answers a
// newSession call is serialized by mu; once a slot is claimed, the
// (potentially slow) factory call that actually starts the session runs
// without holding the lock, so concurrent sessions on independent slots
// never wait on each other.
type Node struct {
	log zerolog.Logger
	bus eventbus.Bus

	id      gridtypes.NodeID
	uri     string
	version string
	osInfo  gridtypes.OSInfo

	factories  *FactoryRegistry
	factoryIDs []string // factoryIDs[i] is the factory that built slots[i]

	mu           sync.Mutex
	slots        []*slotState
	sessionSlot  map[gridtypes.SessionID]int
	availability gridtypes.Availability
}

// Config describes the slots a node advertises at construction. Index
// order is preserved into SlotId.Index.
type Config struct {
	URI         string
	Version     string
	Descriptors []DriverDescriptor
}

// New constructs a Node with one slot per (descriptor, instance) pair —
// MaxSessions on a descriptor expands to that many independent slots,
// all sharing the descriptor's stereotype and factory.
func New(log zerolog.Logger, bus eventbus.Bus, factories *FactoryRegistry, cfg Config) *Node {
	id := gridtypes.NewNodeID()
	n := &Node{
		log:          log.With().Str("component", "node").Str("node_id", string(id)).Logger(),
		bus:          bus,
		id:           id,
		uri:          cfg.URI,
		version:      cfg.Version,
		osInfo:       gridtypes.OSInfo{Name: runtime.GOOS, Arch: runtime.GOARCH},
		factories:    factories,
		sessionSlot:  make(map[gridtypes.SessionID]int),
		availability: gridtypes.Up,
	}

	index := 0
	for _, d := range cfg.Descriptors {
		max := d.MaxSessions
		if max <= 0 {
			max = 1
		}
		for i := 0; i < max; i++ {
			n.slots = append(n.slots, &slotState{
				slot: gridtypes.Slot{
					ID:         gridtypes.SlotID{NodeID: id, Index: index},
					Stereotype: d.Stereotype,
				},
			})
			n.factoryIDs = append(n.factoryIDs, d.FactoryID)
			index++
		}
	}
	return n
}

// ID returns the node's identity.
func (n *Node) ID() gridtypes.NodeID { return n.id }

// URI returns the address the distributor should use to reach this node.
func (n *Node) URI() string { return n.uri }

// NewSession implements the Node.newSession operation: it atomically
// claims a free slot whose stereotype matches the request's
// capabilities, then calls out to that slot's factory without
// holding the node lock.
func (n *Node) NewSession(ctx context.Context, req gridtypes.CreateSessionRequest) (gridtypes.CreateSessionResponse, error) {
	n.mu.Lock()
	if n.availability == gridtypes.Draining {
		n.mu.Unlock()
		return gridtypes.CreateSessionResponse{}, &gridtypes.SessionNotCreated{Reason: "node is draining"}
	}

	idx, factory, ok := n.claimFreeSlotLocked(req.Capabilities)
	if !ok {
		n.mu.Unlock()
		return gridtypes.CreateSessionResponse{}, &gridtypes.RetryableRequest{Reason: "no free slot matches the requested capabilities"}
	}
	n.mu.Unlock()

	handle, encoded, err := factory.NewSession(ctx, req)

	n.mu.Lock()
	defer n.mu.Unlock()

	if err != nil {
		n.slots[idx].claimed = false
		return gridtypes.CreateSessionResponse{}, err
	}

	sessionID := gridtypes.NewSessionID()
	n.slots[idx].slot.Session = &sessionID
	n.slots[idx].slot.LastStarted = time.Now()
	n.slots[idx].handle = handle
	n.sessionSlot[sessionID] = idx

	n.log.Info().Str("session_id", string(sessionID)).Int("slot", idx).Msg("session created")

	return gridtypes.CreateSessionResponse{
		SessionID:                 sessionID,
		NodeURI:                   n.uri,
		Capabilities:              req.Capabilities,
		DownstreamEncodedResponse: encoded,
	}, nil
}

// claimFreeSlotLocked must be called with mu held. It marks the chosen
// slot claimed before returning so no other caller can pick it, even
// though the caller releases mu before invoking the factory.
func (n *Node) claimFreeSlotLocked(want gridtypes.Capabilities) (int, SessionFactory, bool) {
	for i, s := range n.slots {
		if s.claimed || s.slot.HasSession() {
			continue
		}
		if !s.slot.Stereotype.Matches(want) {
			continue
		}
		factory, ok := n.factories.Get(n.factoryIDs[i])
		if !ok {
			continue
		}
		n.slots[i].claimed = true
		return i, factory, true
	}
	return 0, nil, false
}

// ExecuteWebDriverCommand forwards a single command to the session's
// handle.
func (n *Node) ExecuteWebDriverCommand(ctx context.Context, sessionID gridtypes.SessionID, method, path string, body []byte) (int, []byte, error) {
	n.mu.Lock()
	idx, ok := n.sessionSlot[sessionID]
	if !ok {
		n.mu.Unlock()
		return 0, nil, &gridtypes.NoSuchSession{SessionID: sessionID}
	}
	handle := n.slots[idx].handle
	n.mu.Unlock()

	return handle.Forward(ctx, method, path, body)
}

// Stop releases the slot hosting sessionID. It is idempotent in the
// sense that stopping an already-stopped or unknown session returns
// *gridtypes.NoSuchSession rather than panicking, but it is not silently
// ignored — callers that expect "stop a session that might already be
// gone" should check for that error kind explicitly.
func (n *Node) Stop(ctx context.Context, sessionID gridtypes.SessionID) error {
	n.mu.Lock()
	idx, ok := n.sessionSlot[sessionID]
	if !ok {
		n.mu.Unlock()
		return &gridtypes.NoSuchSession{SessionID: sessionID}
	}
	handle := n.slots[idx].handle
	n.mu.Unlock()

	err := handle.Stop(ctx)

	n.mu.Lock()
	n.slots[idx].slot.Session = nil
	n.slots[idx].claimed = false
	n.slots[idx].handle = nil
	delete(n.sessionSlot, sessionID)
	draining := n.availability == gridtypes.Draining
	remaining := len(n.sessionSlot)
	n.mu.Unlock()

	if draining && remaining == 0 {
		n.bus.Publish(eventbus.TopicNodeDrainComplete, eventbus.NodeDrainCompleteEvent{NodeID: n.id})
	}

	return err
}

// Status implements the Node.status operation.
func (n *Node) Status() gridtypes.NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()

	slots := make([]gridtypes.Slot, len(n.slots))
	for i, s := range n.slots {
		slots[i] = s.slot
	}

	return gridtypes.NodeStatus{
		NodeID:                n.id,
		URI:                   n.uri,
		Availability:          n.availability,
		MaxConcurrentSessions: len(n.slots),
		Slots:                 slots,
		Version:               n.version,
		OSInfo:                n.osInfo,
	}
}

// HealthCheck implements the Node.healthCheck self-probe. The reference
// check is trivial (the node responding at all means it is UP); a
// deployment with a heavier-weight probe can wrap a Node to override
// this without changing the rest of the type.
func (n *Node) HealthCheck(ctx context.Context) (gridtypes.Availability, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.availability == gridtypes.Draining {
		return gridtypes.Draining, "draining"
	}
	return gridtypes.Up, "ok"
}

// Drain implements the Node.drain operation: no further NewSession
// calls are accepted, and NodeDrainComplete fires as soon as the last
// running session ends (immediately, if none are running).
func (n *Node) Drain() {
	n.mu.Lock()
	n.availability = gridtypes.Draining
	remaining := len(n.sessionSlot)
	n.mu.Unlock()

	if remaining == 0 {
		n.bus.Publish(eventbus.TopicNodeDrainComplete, eventbus.NodeDrainCompleteEvent{NodeID: n.id})
	}
}

// IsDraining implements the Node.isDraining operation.
func (n *Node) IsDraining() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.availability == gridtypes.Draining
}
