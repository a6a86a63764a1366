package distributor

import (
	"context"
	"errors"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// RemoteQueueClient fronts a Session Queue running as its own process,
// implementing QueueClient over the same endpoints NewSessionQueuer.java
// exposes: remove-by-id and retry-to-head.
type RemoteQueueClient struct {
	client  *gridtypes.Client
	baseURL string
}

// NewRemoteQueueClient builds a client bound to a queue service's base
// URL (e.g. "http://queue:5556"), reusing client's secret and
// transport.
func NewRemoteQueueClient(client *gridtypes.Client, baseURL string) *RemoteQueueClient {
	return &RemoteQueueClient{client: client, baseURL: baseURL}
}

type retryAddResult struct {
	Retried bool `json:"retried"`
}

// Remove implements QueueClient.
func (c *RemoteQueueClient) Remove(secret string, id gridtypes.RequestID) (gridtypes.SessionRequest, bool, error) {
	var req gridtypes.SessionRequest
	url := c.baseURL + "/se/grid/newsessionqueuer/session/" + string(id)
	if err := c.client.Get(context.Background(), url, &req); err != nil {
		var unauthorized *gridtypes.UnauthorizedSecret
		if errors.As(err, &unauthorized) {
			return gridtypes.SessionRequest{}, false, err
		}
		// Any other transport failure is treated as a miss, so the tick
		// moves on instead of wedging; a request it could not claim
		// times out on the client side.
		return gridtypes.SessionRequest{}, false, nil
	}
	if req.RequestID == "" {
		return gridtypes.SessionRequest{}, false, nil
	}
	return req, true, nil
}

// RetryAdd implements QueueClient.
func (c *RemoteQueueClient) RetryAdd(secret string, request gridtypes.SessionRequest) bool {
	var result retryAddResult
	url := c.baseURL + "/se/grid/newsessionqueuer/session/retry/" + string(request.RequestID)
	if err := c.client.Post(context.Background(), url, request, &result); err != nil {
		return false
	}
	return result.Retried
}
