package distributor

import (
	"context"
	"fmt"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// RemoteHandle fronts a node reachable only over the intra-cluster HTTP
// surface — constructed either from the URI in a NodeStatusEvent, or
// from an explicit registration naming a remote node.
type RemoteHandle struct {
	client *gridtypes.Client
	id     gridtypes.NodeID
	uri    string
}

// NewRemoteHandle builds a handle bound to uri, authenticating outbound
// mutations with client's secret.
func NewRemoteHandle(client *gridtypes.Client, id gridtypes.NodeID, uri string) *RemoteHandle {
	return &RemoteHandle{client: client, id: id, uri: uri}
}

func (h *RemoteHandle) ID() gridtypes.NodeID { return h.id }
func (h *RemoteHandle) URI() string          { return h.uri }

func (h *RemoteHandle) NewSession(ctx context.Context, req gridtypes.CreateSessionRequest) (gridtypes.CreateSessionResponse, error) {
	var resp gridtypes.CreateSessionResponse
	if err := h.client.Post(ctx, h.uri+"/session", req, &resp); err != nil {
		return gridtypes.CreateSessionResponse{}, &gridtypes.Transport{Op: "node.newSession", Err: err}
	}
	return resp, nil
}

func (h *RemoteHandle) StopSession(ctx context.Context, id gridtypes.SessionID) error {
	if err := h.client.Delete(ctx, h.uri+"/session/"+string(id), nil); err != nil {
		return &gridtypes.Transport{Op: "node.stopSession", Err: err}
	}
	return nil
}

func (h *RemoteHandle) Status(ctx context.Context) (gridtypes.NodeStatus, error) {
	var status gridtypes.NodeStatus
	if err := h.client.Get(ctx, h.uri+"/status", &status); err != nil {
		return gridtypes.NodeStatus{}, &gridtypes.Transport{Op: "node.status", Err: err}
	}
	return status, nil
}

type healthCheckResponse struct {
	Availability gridtypes.Availability `json:"availability"`
	Message      string                 `json:"message"`
}

func (h *RemoteHandle) HealthCheck(ctx context.Context) (gridtypes.Availability, string, error) {
	var resp healthCheckResponse
	if err := h.client.Get(ctx, h.uri+"/healthz", &resp); err != nil {
		return gridtypes.Down, "", fmt.Errorf("healthcheck %s: %w", h.uri, err)
	}
	return resp.Availability, resp.Message, nil
}

func (h *RemoteHandle) Drain(ctx context.Context) error {
	if err := h.client.Post(ctx, h.uri+"/se/grid/node/drain", nil, nil); err != nil {
		return &gridtypes.Transport{Op: "node.drain", Err: err}
	}
	return nil
}
