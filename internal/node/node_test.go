package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsergrid/gridcore/internal/eventbus"
	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// fakeHandle is a no-op SessionHandle used by fakeFactory.
type fakeHandle struct {
	stopped bool
	mu      sync.Mutex
}

func (h *fakeHandle) Forward(_ context.Context, _, _ string, _ []byte) (int, []byte, error) {
	return 200, []byte(`{"ok":true}`), nil
}

func (h *fakeHandle) Stop(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	return nil
}

// fakeFactory produces fakeHandles, optionally delayed or failing, to
// exercise both the success and retryable-failure paths through Node.
type fakeFactory struct {
	delay   time.Duration
	failErr error
}

func (f *fakeFactory) NewSession(ctx context.Context, req gridtypes.CreateSessionRequest) (SessionHandle, []byte, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if f.failErr != nil {
		return nil, nil, f.failErr
	}
	return &fakeHandle{}, []byte(`{"value":{}}`), nil
}

func cheeseNode(t *testing.T, slots int) (*Node, eventbus.Bus) {
	t.Helper()
	bus := eventbus.NewInMemory(zerolog.Nop())
	registry := NewFactoryRegistry()
	registry.Register("cheese-factory", &fakeFactory{})

	n := New(zerolog.Nop(), bus, registry, Config{
		URI:     "http://node-1:4444",
		Version: "test",
		Descriptors: []DriverDescriptor{
			{Name: "cheese", FactoryID: "cheese-factory", Stereotype: gridtypes.Stereotype{"browserName": "cheese"}, MaxSessions: slots},
		},
	})
	return n, bus
}

func cheeseRequest() gridtypes.CreateSessionRequest {
	return gridtypes.CreateSessionRequest{
		RequestID:    gridtypes.NewRequestID(),
		Capabilities: gridtypes.Capabilities{"browserName": "cheese"},
	}
}

func TestNewSessionSucceedsOnMatchingFreeSlot(t *testing.T) {
	n, _ := cheeseNode(t, 1)

	resp, err := n.NewSession(context.Background(), cheeseRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "http://node-1:4444", resp.NodeURI)

	status := n.Status()
	assert.Equal(t, 1, status.UsedSlots())
}

func TestNewSessionNoMatchingStereotypeIsRetryable(t *testing.T) {
	n, _ := cheeseNode(t, 1)

	_, err := n.NewSession(context.Background(), gridtypes.CreateSessionRequest{
		Capabilities: gridtypes.Capabilities{"browserName": "crackers"},
	})
	var retryable *gridtypes.RetryableRequest
	assert.ErrorAs(t, err, &retryable)
}

func TestNewSessionAllSlotsBusyIsRetryable(t *testing.T) {
	n, _ := cheeseNode(t, 1)

	_, err := n.NewSession(context.Background(), cheeseRequest())
	require.NoError(t, err)

	_, err = n.NewSession(context.Background(), cheeseRequest())
	var retryable *gridtypes.RetryableRequest
	assert.ErrorAs(t, err, &retryable)
}

// TestConcurrentSessionsOnIndependentSlots covers the spec's scenario 5:
// three parallel newSession calls against a node with three matching
// slots all succeed with distinct SessionIds, and each session answers
// a forwarded command.
func TestConcurrentSessionsOnIndependentSlots(t *testing.T) {
	n, _ := cheeseNode(t, 3)

	type result struct {
		resp gridtypes.CreateSessionResponse
		err  error
	}
	results := make(chan result, 3)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := n.NewSession(context.Background(), cheeseRequest())
			results <- result{resp, err}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[gridtypes.SessionID]bool)
	for r := range results {
		require.NoError(t, r.err)
		assert.False(t, seen[r.resp.SessionID], "SessionIds must be distinct")
		seen[r.resp.SessionID] = true

		status, body, err := n.ExecuteWebDriverCommand(context.Background(), r.resp.SessionID, "GET", "/url", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, status)
		assert.NotEmpty(t, body)
	}
	assert.Len(t, seen, 3)
}

func TestStopFreesSlotForReuse(t *testing.T) {
	n, _ := cheeseNode(t, 1)

	resp, err := n.NewSession(context.Background(), cheeseRequest())
	require.NoError(t, err)

	require.NoError(t, n.Stop(context.Background(), resp.SessionID))

	_, err = n.NewSession(context.Background(), cheeseRequest())
	assert.NoError(t, err, "the freed slot must be reusable")
}

func TestStopUnknownSessionIsNoSuchSession(t *testing.T) {
	n, _ := cheeseNode(t, 1)

	err := n.Stop(context.Background(), gridtypes.NewSessionID())
	var notFound *gridtypes.NoSuchSession
	assert.ErrorAs(t, err, &notFound)
}

// TestDrainScenario covers the spec's scenario 6: draining refuses new
// sessions and still publishes NodeDrainComplete once the last session
// ends.
func TestDrainScenario(t *testing.T) {
	n, bus := cheeseNode(t, 1)

	resp, err := n.NewSession(context.Background(), cheeseRequest())
	require.NoError(t, err)

	complete := make(chan eventbus.NodeDrainCompleteEvent, 1)
	bus.Subscribe(eventbus.TopicNodeDrainComplete, func(payload any) {
		complete <- payload.(eventbus.NodeDrainCompleteEvent)
	})

	n.Drain()
	assert.True(t, n.IsDraining())

	_, err = n.NewSession(context.Background(), cheeseRequest())
	var notCreated *gridtypes.SessionNotCreated
	assert.ErrorAs(t, err, &notCreated)

	require.NoError(t, n.Stop(context.Background(), resp.SessionID))

	select {
	case evt := <-complete:
		assert.Equal(t, n.ID(), evt.NodeID)
	case <-time.After(time.Second):
		t.Fatal("NodeDrainComplete was never published")
	}
}

func TestDrainWithNoSessionsCompletesImmediately(t *testing.T) {
	n, bus := cheeseNode(t, 1)

	complete := make(chan struct{}, 1)
	bus.Subscribe(eventbus.TopicNodeDrainComplete, func(payload any) {
		complete <- struct{}{}
	})

	n.Drain()

	select {
	case <-complete:
	case <-time.After(time.Second):
		t.Fatal("NodeDrainComplete was never published for an idle node")
	}
}

func TestHealthCheckReflectsAvailability(t *testing.T) {
	n, _ := cheeseNode(t, 1)

	avail, msg := n.HealthCheck(context.Background())
	assert.Equal(t, gridtypes.Up, avail)
	assert.NotEmpty(t, msg)

	n.Drain()
	avail, _ = n.HealthCheck(context.Background())
	assert.Equal(t, gridtypes.Draining, avail)
}

func TestNewSessionReleasesSlotOnFactoryFailure(t *testing.T) {
	bus := eventbus.NewInMemory(zerolog.Nop())
	registry := NewFactoryRegistry()
	registry.Register("flaky", &fakeFactory{failErr: &gridtypes.RetryableRequest{Reason: "driver busy"}})

	n := New(zerolog.Nop(), bus, registry, Config{
		URI: "http://node-1:4444",
		Descriptors: []DriverDescriptor{
			{FactoryID: "flaky", Stereotype: gridtypes.Stereotype{"browserName": "cheese"}, MaxSessions: 1},
		},
	})

	_, err := n.NewSession(context.Background(), cheeseRequest())
	var retryable *gridtypes.RetryableRequest
	require.ErrorAs(t, err, &retryable)

	status := n.Status()
	assert.Equal(t, 0, status.UsedSlots(), "a failed factory call must release the slot back to free")
}

func TestExecuteWebDriverCommandUnknownSession(t *testing.T) {
	n, _ := cheeseNode(t, 1)

	_, _, err := n.ExecuteWebDriverCommand(context.Background(), gridtypes.NewSessionID(), "GET", "/url", nil)
	var notFound *gridtypes.NoSuchSession
	assert.ErrorAs(t, err, &notFound)
}

func TestUnknownError(t *testing.T) {
	// Sanity check that errors.As works against the sentinel set used
	// throughout this package's tests (guards against a future
	// refactor accidentally dropping the pointer receiver on an error
	// type, which would silently break every ErrorAs assertion above).
	var err error = &gridtypes.NoSuchSession{SessionID: "x"}
	var target *gridtypes.NoSuchSession
	if !errors.As(err, &target) {
		t.Fatal("errors.As must match *gridtypes.NoSuchSession")
	}
}
