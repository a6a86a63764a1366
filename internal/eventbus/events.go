package eventbus

import (
	"time"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// Topic names a channel of related lifecycle events. Ordering is
// guaranteed only within a topic, never across topics.
type Topic string

const (
	TopicNodeStatus         Topic = "NodeStatus"
	TopicNodeHeartBeat      Topic = "NodeHeartBeat"
	TopicNodeDrainComplete  Topic = "NodeDrainComplete"
	TopicNodeAdded          Topic = "NodeAdded"
	TopicNewSessionRequest  Topic = "NewSessionRequest"
	TopicNewSessionResponse Topic = "NewSessionResponse"
	TopicNewSessionRejected Topic = "NewSessionRejected"
)

// NodeStatusEvent carries a node's full self-reported snapshot, as
// published on registration or on every heartbeat tick by some nodes.
// Secret is the registration secret the publisher signed the event with;
// the distributor rejects events whose Secret does not match its own.
type NodeStatusEvent struct {
	Status gridtypes.NodeStatus
	Secret string
}

// NodeHeartBeatEvent is the lightweight liveness signal a node emits
// between full status publications.
type NodeHeartBeatEvent struct {
	NodeID gridtypes.NodeID
	URI    string
	At     time.Time
	Secret string
}

// NodeDrainCompleteEvent fires once a draining node's last session ends.
type NodeDrainCompleteEvent struct {
	NodeID gridtypes.NodeID
}

// NodeAddedEvent fires once, the moment the distributor admits a new node
// into its Grid Model.
type NodeAddedEvent struct {
	NodeID gridtypes.NodeID
	URI    string
}

// NewSessionRequestEvent wakes any distributor watching the bus so it
// does not have to wait for its next scheduling tick.
type NewSessionRequestEvent struct {
	RequestID gridtypes.RequestID
}

// NewSessionResponseEvent is the terminal success event for a request:
// exactly one of this or NewSessionRejectedEvent is ever fired per
// RequestID.
type NewSessionResponseEvent struct {
	RequestID gridtypes.RequestID
	Response  gridtypes.CreateSessionResponse
}

// NewSessionRejectedEvent is the terminal failure event for a request.
type NewSessionRejectedEvent struct {
	RequestID gridtypes.RequestID
	Reason    string
}
