package gridtypes

import (
	"strconv"

	"github.com/google/uuid"
)

// NodeID uniquely identifies a node for the lifetime of its process. It is
// minted at node start-up, never reused, so a restarted node looks like a
// brand-new one to the rest of the grid.
type NodeID string

// NewNodeID mints a fresh, globally-unique node identifier.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// RequestID uniquely identifies a single session request for its lifetime
// in the queue.
type RequestID string

// NewRequestID mints a fresh, globally-unique request identifier.
func NewRequestID() RequestID {
	return RequestID(uuid.NewString())
}

// SessionID uniquely identifies a created session. It is chosen by the
// Node that created the session, not by the caller.
type SessionID string

// NewSessionID mints a fresh, globally-unique session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// SlotID identifies a single concurrency slot on a node. It is stable for
// the slot's lifetime: the same index on the same node always refers to
// the same slot, even as the session it hosts comes and goes.
type SlotID struct {
	NodeID NodeID `json:"nodeId"`
	Index  int    `json:"index"`
}

// String renders the slot ID in "<nodeId>:<index>" form, suitable for use
// as a JSON object key in model dumps.
func (s SlotID) String() string {
	return string(s.NodeID) + ":" + strconv.Itoa(s.Index)
}
