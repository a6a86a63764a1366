package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsergrid/gridcore/internal/distributor"
	"github.com/browsergrid/gridcore/internal/eventbus"
	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/node"
	"github.com/browsergrid/gridcore/internal/queue"
	"github.com/browsergrid/gridcore/internal/sessionmap"
)

type cheeseFactory struct{}

func (cheeseFactory) NewSession(_ context.Context, _ gridtypes.CreateSessionRequest) (node.SessionHandle, []byte, error) {
	return noopHandle{}, []byte(`{}`), nil
}

type noopHandle struct{}

func (noopHandle) Forward(_ context.Context, _, _ string, _ []byte) (int, []byte, error) {
	return 200, []byte(`{}`), nil
}
func (noopHandle) Stop(_ context.Context) error { return nil }

func newTestDistributorRouter(t *testing.T) (chi.Router, *distributor.Distributor, func()) {
	t.Helper()
	bus := eventbus.NewInMemory(zerolog.Nop())
	q := queue.New(zerolog.Nop(), bus, clock.SystemClock, queue.Config{
		RequestTimeout: func() time.Duration { return 2 * time.Second },
		RetryInterval:  func() time.Duration { return 10 * time.Millisecond },
		Secret:         testSecret,
	})
	sessions := sessionmap.NewInMemory()
	d := distributor.New(zerolog.Nop(), bus, q, sessions, clock.SystemClock, distributor.Config{
		Secret:              testSecret,
		HealthCheckInterval: func() time.Duration { return 10 * time.Second },
		TickInterval:        20 * time.Millisecond,
	})

	registry := node.NewFactoryRegistry()
	registry.Register("cheese-factory", cheeseFactory{})
	n := node.New(zerolog.Nop(), bus, registry, node.Config{
		URI: "http://node-1:4444",
		Descriptors: []node.DriverDescriptor{
			{FactoryID: "cheese-factory", Stereotype: gridtypes.Stereotype{"browserName": "cheese"}, MaxSessions: 1},
		},
	})
	require.NoError(t, d.Register(context.Background(), distributor.NewLocalHandle(n)))

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	r := NewDistributorRouter(zerolog.Nop(), d, q, testSecret)
	return r, d, func() { cancel(); bus.Close() }
}

func TestDistributorRouterRegisterRequiresSecret(t *testing.T) {
	r, _, cleanup := newTestDistributorRouter(t)
	defer cleanup()

	body, _ := json.Marshal(map[string]string{"nodeId": "n2", "uri": "http://node-2:4444"})
	req := httptest.NewRequest(http.MethodPost, "/se/grid/distributor/node", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDistributorRouterStatusListsRegisteredNode(t *testing.T) {
	r, _, cleanup := newTestDistributorRouter(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/se/grid/distributor/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Nodes []gridtypes.NodeStatus `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, "http://node-1:4444", got.Nodes[0].URI)
}

func TestDistributorRouterCreateSessionSynchronously(t *testing.T) {
	r, _, cleanup := newTestDistributorRouter(t)
	defer cleanup()

	body, _ := json.Marshal(gridtypes.SessionRequest{
		CapabilitiesChoices: []gridtypes.Capabilities{{"browserName": "cheese"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/se/grid/distributor/session", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp gridtypes.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestDistributorRouterReadyz(t *testing.T) {
	r, _, cleanup := newTestDistributorRouter(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
