package distributor

import (
	"context"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// NodeHandle is the Distributor's view of a node: either an in-process
// *node.Node (an "embedded-node configuration") or a RemoteHandle
// fronting a node reachable only over HTTP. The Distributor never cares
// which.
type NodeHandle interface {
	ID() gridtypes.NodeID
	URI() string
	NewSession(ctx context.Context, req gridtypes.CreateSessionRequest) (gridtypes.CreateSessionResponse, error)
	StopSession(ctx context.Context, id gridtypes.SessionID) error
	Status(ctx context.Context) (gridtypes.NodeStatus, error)
	HealthCheck(ctx context.Context) (gridtypes.Availability, string, error)
	Drain(ctx context.Context) error
}

// LocalHandle adapts an in-process node.Node (whose methods have no
// occasion to fail at the transport layer) to NodeHandle.
type LocalHandle struct {
	node localNode
}

// localNode is the subset of *node.Node the distributor depends on,
// named here rather than importing the node package directly so this
// file has no import-cycle risk if node ever needs distributor types.
type localNode interface {
	ID() gridtypes.NodeID
	URI() string
	NewSession(ctx context.Context, req gridtypes.CreateSessionRequest) (gridtypes.CreateSessionResponse, error)
	Stop(ctx context.Context, id gridtypes.SessionID) error
	Status() gridtypes.NodeStatus
	HealthCheck(ctx context.Context) (gridtypes.Availability, string)
	Drain()
}

// NewLocalHandle wraps an embedded node for direct, in-process use.
func NewLocalHandle(n localNode) *LocalHandle {
	return &LocalHandle{node: n}
}

func (h *LocalHandle) ID() gridtypes.NodeID { return h.node.ID() }
func (h *LocalHandle) URI() string          { return h.node.URI() }

func (h *LocalHandle) NewSession(ctx context.Context, req gridtypes.CreateSessionRequest) (gridtypes.CreateSessionResponse, error) {
	return h.node.NewSession(ctx, req)
}

func (h *LocalHandle) StopSession(ctx context.Context, id gridtypes.SessionID) error {
	return h.node.Stop(ctx, id)
}

func (h *LocalHandle) Status(_ context.Context) (gridtypes.NodeStatus, error) {
	return h.node.Status(), nil
}

func (h *LocalHandle) HealthCheck(ctx context.Context) (gridtypes.Availability, string, error) {
	avail, msg := h.node.HealthCheck(ctx)
	return avail, msg, nil
}

func (h *LocalHandle) Drain(_ context.Context) error {
	h.node.Drain()
	return nil
}
