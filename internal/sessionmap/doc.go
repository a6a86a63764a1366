// Package sessionmap implements the grid's authoritative binding from a
// created session ID to the URI of the node hosting it. The router uses
// this binding to forward in-session WebDriver commands; nothing else in
// the core depends on more than add/getURI/remove/ready.
//
// Two interchangeable backends satisfy Map: InMemory, the default, and
// Redis, which delegates the binding to a shared Redis instance so a
// session map can outlive a single distributor process.
package sessionmap
