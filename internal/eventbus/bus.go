package eventbus

import "context"

// Handler is invoked at-most-once per delivered message, with the payload
// value published on that topic (one of the Event structs in events.go).
type Handler func(payload any)

// Bus is the publish/subscribe contract every component depends on. It is
// satisfied by InMemory (the only implementation carried by this core —
// cross-process fan-out rides the same intra-cluster HTTP surface as
// everything else, via Notifier, rather than a second Bus implementation).
type Bus interface {
	// Publish hands payload to every current subscriber of topic. It
	// never blocks beyond enqueuing onto each subscriber's bounded
	// buffer; a full buffer causes that subscriber (and only that one)
	// to miss the message.
	Publish(topic Topic, payload any)

	// Subscribe installs handler on topic and returns a function that
	// removes it. Handlers for the same topic are invoked in an order
	// consistent with publish order for that topic; handlers across
	// different topics have no relative ordering guarantee.
	Subscribe(topic Topic, handler Handler) (unsubscribe func())

	// Close stops every subscription's dispatch goroutine. Publish after
	// Close is a no-op.
	Close()

	// Ready reports whether the bus can currently accept publishes, for
	// the distributor's combined readiness probe.
	Ready(ctx context.Context) bool
}
