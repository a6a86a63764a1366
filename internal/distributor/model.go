package distributor

import (
	"context"
	"time"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// nodeEntry is the Distributor's per-node bookkeeping: the handle used
// to reach it, its last-known status snapshot, and the wall-clock time
// its last heartbeat (of any kind) was observed.
type nodeEntry struct {
	handle        NodeHandle
	status        gridtypes.NodeStatus
	lastHeartbeat time.Time
	healthCancel  context.CancelFunc

	// local is true for nodes admitted via Register (an embedded-node
	// configuration sharing this process, or a node registered over
	// HTTP) rather than discovered off the bus. Local nodes are exempt
	// from purging.
	local bool

	// reserved tracks slots with a newSession call in flight, distinct
	// from status.Slots' Session field, which only reflects a completed
	// reservation.
	reserved map[gridtypes.SlotID]bool
}

// QueueClient is the subset of the Session Queue the Distributor
// depends on to claim and requeue requests. *queue.Queue satisfies this
// directly when the two are co-located in one process; a remote queue
// service is fronted by RemoteQueueClient.
type QueueClient interface {
	Remove(secret string, id gridtypes.RequestID) (gridtypes.SessionRequest, bool, error)
	RetryAdd(secret string, request gridtypes.SessionRequest) bool
}
