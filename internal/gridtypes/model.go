package gridtypes

import "time"

// Availability is the coarse health state the distributor assigns to a
// node in its grid model.
type Availability string

const (
	Up       Availability = "UP"
	Draining Availability = "DRAINING"
	Down     Availability = "DOWN"
)

// Slot is a single concurrency unit on a node: it can host at most one
// session at a time and advertises a fixed Stereotype describing what it
// can satisfy.
type Slot struct {
	ID         SlotID     `json:"id"`
	Stereotype Stereotype `json:"stereotype"`
	LastStarted time.Time `json:"lastStarted"`
	Session    *SessionID `json:"session,omitempty"`
}

// HasSession reports whether the slot currently hosts a session.
func (s Slot) HasSession() bool {
	return s.Session != nil
}

// NodeStatus is the snapshot a node reports of itself: its identity,
// advertised capacity, and the current state of every slot it owns.
type NodeStatus struct {
	NodeID                NodeID       `json:"nodeId"`
	URI                   string       `json:"uri"`
	Availability          Availability `json:"availability"`
	MaxConcurrentSessions int          `json:"maxConcurrentSessions"`
	Slots                 []Slot       `json:"slots"`
	Version               string       `json:"version"`
	OSInfo                OSInfo       `json:"osInfo"`
}

// OSInfo describes the host a node is running on, reported for UI/debug
// purposes only — nothing in the scheduling path depends on its contents.
type OSInfo struct {
	Name    string `json:"name"`
	Arch    string `json:"arch"`
	Version string `json:"version"`
}

// UsedSlots returns the number of slots on the node currently hosting a
// session.
func (n NodeStatus) UsedSlots() int {
	used := 0
	for _, s := range n.Slots {
		if s.HasSession() {
			used++
		}
	}
	return used
}

// HasCapacity reports whether the node has at least one free slot whose
// stereotype could satisfy any of the given capability choices. An empty
// choices list is treated as "any free slot will do".
func (n NodeStatus) HasCapacity(choices []Capabilities) bool {
	for _, slot := range n.Slots {
		if slot.HasSession() {
			continue
		}
		if len(choices) == 0 {
			return true
		}
		for _, want := range choices {
			if slot.Stereotype.Matches(want) {
				return true
			}
		}
	}
	return false
}

// SessionRequest is a client's request for a new session, as stored in
// the queue. CapabilitiesChoices holds alternative capability profiles a
// single client request may enumerate; the matcher tries them in order.
type SessionRequest struct {
	RequestID           RequestID      `json:"requestId"`
	EnqueuedAt          time.Time      `json:"enqueuedAt"`
	Dialects            []string       `json:"dialects"`
	CapabilitiesChoices []Capabilities `json:"capabilitiesChoices"`
}

// CreateSessionRequest is what the distributor hands to a node once it
// has reserved a slot for a session request.
type CreateSessionRequest struct {
	RequestID    RequestID    `json:"requestId"`
	Capabilities Capabilities `json:"capabilities"`
	Dialects     []string     `json:"dialects"`
}

// CreateSessionResponse is what a node returns on a successful
// newSession call.
type CreateSessionResponse struct {
	SessionID               SessionID `json:"sessionId"`
	NodeURI                 string    `json:"nodeUri"`
	Capabilities            Capabilities `json:"capabilities"`
	DownstreamEncodedResponse []byte  `json:"downstreamEncodedResponse,omitempty"`
}

// ActiveSession is the node-local record of a running session, bound to
// the slot that hosts it.
type ActiveSession struct {
	SessionID    SessionID
	SlotID       SlotID
	Capabilities Capabilities
	StartedAt    time.Time
}
