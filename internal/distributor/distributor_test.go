package distributor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsergrid/gridcore/internal/eventbus"
	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/node"
	"github.com/browsergrid/gridcore/internal/queue"
	"github.com/browsergrid/gridcore/internal/sessionmap"
)

const testSecret = "right"

// fakeHandle is a no-op SessionHandle, mirroring node's own test double.
type fakeHandle struct{}

func (fakeHandle) Forward(_ context.Context, _, _ string, _ []byte) (int, []byte, error) {
	return 200, []byte(`{"ok":true}`), nil
}

func (fakeHandle) Stop(_ context.Context) error { return nil }

// flakyOnceFactory fails its first call with a RetryableRequest, then
// succeeds on every call after — used to drive the spec's retryable
// scenario.
type flakyOnceFactory struct {
	mu     sync.Mutex
	failed bool
}

func (f *flakyOnceFactory) NewSession(_ context.Context, _ gridtypes.CreateSessionRequest) (node.SessionHandle, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.failed {
		f.failed = true
		return nil, nil, &gridtypes.RetryableRequest{Reason: "driver momentarily busy"}
	}
	return fakeHandle{}, []byte(`{}`), nil
}

func cheeseLocalNode(t *testing.T, bus eventbus.Bus, slots int) *node.Node {
	t.Helper()
	registry := node.NewFactoryRegistry()
	registry.Register("cheese-factory", &testFactory{})
	return node.New(zerolog.Nop(), bus, registry, node.Config{
		URI:     "http://node-1:4444",
		Version: "test",
		Descriptors: []node.DriverDescriptor{
			{Name: "cheese", FactoryID: "cheese-factory", Stereotype: gridtypes.Stereotype{"browserName": "cheese"}, MaxSessions: slots},
		},
	})
}

type testFactory struct{}

func (testFactory) NewSession(_ context.Context, _ gridtypes.CreateSessionRequest) (node.SessionHandle, []byte, error) {
	return fakeHandle{}, []byte(`{}`), nil
}

func cheeseWant() gridtypes.Capabilities {
	return gridtypes.Capabilities{"browserName": "cheese"}
}

func newTestDistributor(t *testing.T, bus eventbus.Bus) (*Distributor, *queue.Queue, sessionmap.Map) {
	t.Helper()
	q := queue.New(zerolog.Nop(), bus, clock.SystemClock, queue.Config{
		RequestTimeout: func() time.Duration { return 2 * time.Second },
		RetryInterval:  func() time.Duration { return 10 * time.Millisecond },
		Secret:         testSecret,
	})
	sessions := sessionmap.NewInMemory()
	d := New(zerolog.Nop(), bus, q, sessions, clock.SystemClock, Config{
		Secret:              testSecret,
		HealthCheckInterval: func() time.Duration { return 10 * time.Second },
		TickInterval:        20 * time.Millisecond,
	})
	return d, q, sessions
}

// TestAddNodeToDistributor covers scenario 1: registering a local node
// makes it appear in Status with its own URI.
func TestAddNodeToDistributor(t *testing.T) {
	bus := eventbus.NewInMemory(zerolog.Nop())
	defer bus.Close()
	d, _, _ := newTestDistributor(t, bus)

	n := cheeseLocalNode(t, bus, 1)
	require.NoError(t, d.Register(context.Background(), NewLocalHandle(n)))

	status := d.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "http://node-1:4444", status[0].URI)
}

// TestWrongSecretRejection covers scenario 2: a NodeStatusEvent signed
// with the wrong secret never makes it into the model.
func TestWrongSecretRejection(t *testing.T) {
	bus := eventbus.NewInMemory(zerolog.Nop())
	defer bus.Close()
	d, _, _ := newTestDistributor(t, bus)

	bus.Publish(eventbus.TopicNodeStatus, eventbus.NodeStatusEvent{
		Status: gridtypes.NodeStatus{NodeID: gridtypes.NewNodeID(), URI: "http://evil:1"},
		Secret: "wrong",
	})

	// Publish is async; give the dispatch goroutine a moment, then
	// assert the model never picked it up.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, d.Status(), 0)
}

// TestRemove covers scenario 3.
func TestRemove(t *testing.T) {
	bus := eventbus.NewInMemory(zerolog.Nop())
	defer bus.Close()
	d, _, _ := newTestDistributor(t, bus)

	n := cheeseLocalNode(t, bus, 1)
	handle := NewLocalHandle(n)
	require.NoError(t, d.Register(context.Background(), handle))
	require.Len(t, d.Status(), 1)

	d.Remove(handle.ID())
	assert.Len(t, d.Status(), 0)
}

// TestDuplicateRegistrationIsIdempotent covers scenario 4.
func TestDuplicateRegistrationIsIdempotent(t *testing.T) {
	bus := eventbus.NewInMemory(zerolog.Nop())
	defer bus.Close()
	d, _, _ := newTestDistributor(t, bus)

	n := cheeseLocalNode(t, bus, 1)
	handle := NewLocalHandle(n)
	require.NoError(t, d.Register(context.Background(), handle))
	require.NoError(t, d.Register(context.Background(), handle))

	assert.Len(t, d.Status(), 1)
}

// TestConcurrentSessionsAcrossTicks covers scenario 5 through the
// distributor's own scheduling path rather than Node directly: three
// requests queued against a 3-slot node all succeed with distinct
// SessionIds.
func TestConcurrentSessionsAcrossTicks(t *testing.T) {
	bus := eventbus.NewInMemory(zerolog.Nop())
	defer bus.Close()
	d, q, sessions := newTestDistributor(t, bus)

	n := cheeseLocalNode(t, bus, 3)
	require.NoError(t, d.Register(context.Background(), NewLocalHandle(n)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	var wg sync.WaitGroup
	results := make(chan gridtypes.CreateSessionResponse, 3)
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := q.Add(context.Background(), gridtypes.SessionRequest{
				RequestID:           gridtypes.NewRequestID(),
				CapabilitiesChoices: []gridtypes.Capabilities{cheeseWant()},
			})
			if err != nil {
				errs <- err
				return
			}
			results <- resp
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[gridtypes.SessionID]bool)
	for resp := range results {
		assert.False(t, seen[resp.SessionID])
		seen[resp.SessionID] = true
		uri, err := sessions.GetURI(context.Background(), resp.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "http://node-1:4444", uri)
	}
	assert.Len(t, seen, 3)
}

// TestDrainHidesNodeAndRefusesNewSessions covers scenario 6.
func TestDrainHidesNodeAndRefusesNewSessions(t *testing.T) {
	bus := eventbus.NewInMemory(zerolog.Nop())
	defer bus.Close()
	d, _, _ := newTestDistributor(t, bus)

	n := cheeseLocalNode(t, bus, 1)
	handle := NewLocalHandle(n)
	require.NoError(t, d.Register(context.Background(), handle))

	require.NoError(t, d.Drain(context.Background(), handle.ID()))
	assert.True(t, n.IsDraining())
	assert.Len(t, d.Status(), 0)

	_, err := n.NewSession(context.Background(), gridtypes.CreateSessionRequest{Capabilities: cheeseWant()})
	var notCreated *gridtypes.SessionNotCreated
	assert.ErrorAs(t, err, &notCreated)
}

// TestRetryableRequestReachesHeadAndSucceedsOnSecondTick covers
// scenario 7: a node that fails the first attempt with a
// RetryableRequest causes the request to reappear at the queue head and
// succeed once a slot is free again.
func TestRetryableRequestReachesHeadAndSucceedsOnSecondTick(t *testing.T) {
	bus := eventbus.NewInMemory(zerolog.Nop())
	defer bus.Close()
	d, q, _ := newTestDistributor(t, bus)

	registry := node.NewFactoryRegistry()
	registry.Register("flaky", &flakyOnceFactory{})
	n := node.New(zerolog.Nop(), bus, registry, node.Config{
		URI: "http://node-1:4444",
		Descriptors: []node.DriverDescriptor{
			{FactoryID: "flaky", Stereotype: gridtypes.Stereotype{"browserName": "cheese"}, MaxSessions: 1},
		},
	})
	require.NoError(t, d.Register(context.Background(), NewLocalHandle(n)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp, err := q.Add(context.Background(), gridtypes.SessionRequest{
		RequestID:           gridtypes.NewRequestID(),
		CapabilitiesChoices: []gridtypes.Capabilities{cheeseWant()},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
}

// TestReadyCombinesBusAndSessionMap checks that readiness is true while
// the event bus and the session map are both ready, and turns false once
// the bus alone is closed.
func TestReadyCombinesBusAndSessionMap(t *testing.T) {
	bus := eventbus.NewInMemory(zerolog.Nop())
	defer bus.Close()
	d, _, _ := newTestDistributor(t, bus)

	assert.True(t, d.Ready(context.Background()))

	bus.Close()
	assert.False(t, d.Ready(context.Background()))
}

// TestDefaultSlotSelectorPrefersMoreFreeSlots exercises the tie-break
// order directly.
func TestDefaultSlotSelectorPrefersMoreFreeSlots(t *testing.T) {
	selector := DefaultSlotSelector{}
	busyNode := gridtypes.NodeStatus{
		NodeID: "busy",
		Slots: []gridtypes.Slot{
			{ID: gridtypes.SlotID{NodeID: "busy", Index: 0}, Stereotype: gridtypes.Stereotype{"browserName": "cheese"}},
			{ID: gridtypes.SlotID{NodeID: "busy", Index: 1}, Stereotype: gridtypes.Stereotype{"browserName": "cheese"}, Session: sessionPtr("s1")},
		},
	}
	idleNode := gridtypes.NodeStatus{
		NodeID: "idle",
		Slots: []gridtypes.Slot{
			{ID: gridtypes.SlotID{NodeID: "idle", Index: 0}, Stereotype: gridtypes.Stereotype{"browserName": "cheese"}},
			{ID: gridtypes.SlotID{NodeID: "idle", Index: 1}, Stereotype: gridtypes.Stereotype{"browserName": "cheese"}},
		},
	}

	candidates := selector.Select([]gridtypes.NodeStatus{busyNode, idleNode}, cheeseWant())
	require.NotEmpty(t, candidates)
	assert.Equal(t, gridtypes.NodeID("idle"), candidates[0].NodeID, "the node with more free slots should rank first")
}

func sessionPtr(id gridtypes.SessionID) *gridtypes.SessionID { return &id }
