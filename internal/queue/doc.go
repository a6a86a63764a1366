// Package queue implements the grid's session request queue: a strict
// FIFO with one exception (retryAdd reinserts at the head) and a bounded
// per-request wait. Add blocks the calling goroutine until the
// distributor completes the request, one way or the other, or until the
// request's deadline elapses.
package queue
