package sessionmap

import (
	"context"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// Map is the process-wide session-to-node binding. The core depends only
// on these three binding operations plus a readiness probe, so the
// backing store is freely replaceable.
type Map interface {
	// Add binds sessionID to nodeURI. It fails with *gridtypes.SessionExists
	// if sessionID is already bound.
	Add(ctx context.Context, sessionID gridtypes.SessionID, nodeURI string) error

	// GetURI returns the node URI bound to sessionID, or
	// *gridtypes.NoSuchSession if there is no such binding.
	GetURI(ctx context.Context, sessionID gridtypes.SessionID) (string, error)

	// Remove drops the binding for sessionID. It is idempotent: removing
	// an unbound or already-removed session is not an error.
	Remove(ctx context.Context, sessionID gridtypes.SessionID) error

	// Ready reports whether the backing store is currently reachable,
	// for the distributor's combined readiness probe.
	Ready(ctx context.Context) bool
}
