// Package eventbus implements the grid's topic-keyed publish/subscribe
// channel: lifecycle events (node status, heartbeats, session request
// outcomes) flow through it from the component that observes them to every
// component that needs to react, without either side holding a direct
// reference to the other.
//
// Delivery is in-process and best-effort: a publish that finds a
// subscriber's buffer full is dropped rather than blocking the publisher,
// so components must tolerate missing events and re-derive state from
// periodic heartbeats and health checks rather than relying on the bus as
// a source of truth.
package eventbus
