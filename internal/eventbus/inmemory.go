package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// subscriptionBufferSize bounds how far a slow handler can lag behind its
// publisher before messages start being dropped for it specifically.
const subscriptionBufferSize = 64

type subscription struct {
	id      uint64
	handler Handler
	ch      chan any
	done    chan struct{}
}

// InMemory is a topic-keyed fan-out of buffered Go channels: one worker
// goroutine per subscription, so a slow handler on one subscription never
// delays delivery to another subscription of the same topic, and
// publish-order is preserved per subscription because each has exactly
// one reader.
type InMemory struct {
	log zerolog.Logger

	mu        sync.RWMutex
	subs      map[Topic][]*subscription
	closed    bool
	nextSubID uint64
}

// NewInMemory constructs a ready-to-use in-process bus.
func NewInMemory(log zerolog.Logger) *InMemory {
	return &InMemory{
		log:  log.With().Str("component", "eventbus").Logger(),
		subs: make(map[Topic][]*subscription),
	}
}

// Publish implements Bus.
func (b *InMemory) Publish(topic Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- payload:
		default:
			b.log.Warn().
				Str("topic", string(topic)).
				Uint64("subscription", sub.id).
				Msg("subscriber buffer full, dropping event")
		}
	}
}

// Subscribe implements Bus.
func (b *InMemory) Subscribe(topic Topic, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextSubID++
	sub := &subscription{
		id:      b.nextSubID,
		handler: handler,
		ch:      make(chan any, subscriptionBufferSize),
		done:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go sub.run()

	return func() { b.unsubscribe(topic, sub) }
}

func (sub *subscription) run() {
	for {
		select {
		case payload := <-sub.ch:
			sub.handler(payload)
		case <-sub.done:
			return
		}
	}
}

func (b *InMemory) unsubscribe(topic Topic, target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, sub := range subs {
		if sub == target {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(sub.done)
			return
		}
	}
}

// Close implements Bus.
func (b *InMemory) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.done)
		}
	}
	b.subs = make(map[Topic][]*subscription)
}

// Ready implements Bus. An in-process bus has no external dependency to
// probe: it is ready until Close has been called.
func (b *InMemory) Ready(_ context.Context) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}
