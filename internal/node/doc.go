// Package node implements the grid's Node (C4): a fixed pool of
// concurrency slots, each advertising a stereotype, each hosting at most
// one session. A Node serializes decisions about which slot to hand out
// next but lets the (potentially slow) work of actually starting a
// session run concurrently across slots.
//
// What actually happens inside a session — launching a browser process,
// talking to a remote driver endpoint, whatever a deployment wires up —
// is deliberately opaque to this package: SessionFactory and
// SessionHandle are the only two seams a concrete driver integration
// needs to implement.
package node
