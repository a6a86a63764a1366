package eventbus

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

func newTestBus() *InMemory {
	return NewInMemory(zerolog.Nop())
}

func TestInMemoryDeliversToSubscriber(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	received := make(chan any, 1)
	bus.Subscribe(TopicNodeAdded, func(payload any) {
		received <- payload
	})

	bus.Publish(TopicNodeAdded, NodeAddedEvent{NodeID: gridtypes.NodeID("n1")})

	select {
	case payload := <-received:
		evt, ok := payload.(NodeAddedEvent)
		require.True(t, ok)
		assert.Equal(t, gridtypes.NodeID("n1"), evt.NodeID)
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestInMemoryPreservesPerTopicOrder(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var mu sync.Mutex
	var seen []int

	done := make(chan struct{})
	count := 0
	bus.Subscribe(TopicNewSessionRequest, func(payload any) {
		evt := payload.(NewSessionRequestEvent)
		mu.Lock()
		seen = append(seen, atoiRequestID(evt.RequestID))
		count++
		if count == 50 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		bus.Publish(TopicNewSessionRequest, NewSessionRequestEvent{RequestID: gridtypes.RequestID(strconv.Itoa(i))})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive all 50 events")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 50)
	for i, v := range seen {
		assert.Equal(t, i, v, "events must be delivered in publish order within a topic")
	}
}

func TestInMemorySlowSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	block := make(chan struct{})
	bus.Subscribe(TopicNodeHeartBeat, func(payload any) {
		<-block // never returns until the test releases it
	})

	fast := make(chan any, 1)
	bus.Subscribe(TopicNodeHeartBeat, func(payload any) {
		fast <- payload
	})

	// Overflow the slow subscriber's buffer; Publish must not block on it.
	publishDone := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBufferSize+10; i++ {
			bus.Publish(TopicNodeHeartBeat, NodeHeartBeatEvent{})
		}
		close(publishDone)
	}()

	select {
	case <-publishDone:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber never received its event")
	}

	close(block)
}

func TestInMemoryUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	var calls int
	var mu sync.Mutex
	unsubscribe := bus.Subscribe(TopicNodeDrainComplete, func(payload any) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	bus.Publish(TopicNodeDrainComplete, NodeDrainCompleteEvent{})
	time.Sleep(50 * time.Millisecond)

	unsubscribe()

	bus.Publish(TopicNodeDrainComplete, NodeDrainCompleteEvent{})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestInMemoryCloseStopsAllDelivery(t *testing.T) {
	bus := newTestBus()

	var calls int
	var mu sync.Mutex
	bus.Subscribe(TopicNodeAdded, func(payload any) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	bus.Close()
	bus.Publish(TopicNodeAdded, NodeAddedEvent{})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestInMemoryReadyUntilClosed(t *testing.T) {
	bus := newTestBus()
	assert.True(t, bus.Ready(context.Background()))

	bus.Close()
	assert.False(t, bus.Ready(context.Background()))
}

func atoiRequestID(r gridtypes.RequestID) int {
	n, _ := strconv.Atoi(string(r))
	return n
}
