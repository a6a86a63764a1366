// Package httpapi exposes the queue, distributor, session-map and node
// components over HTTP, per the external interfaces a gridcore process
// may serve. Every router is a chi.Router so a process that co-locates
// several roles (an all-in-one deployment) can mount them side by side
// on one listener.
package httpapi
