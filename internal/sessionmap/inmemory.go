package sessionmap

import (
	"context"
	"sync"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// InMemory is the default Map backend: a mutex-guarded map, scoped to a
// single distributor process.
type InMemory struct {
	mu       sync.RWMutex
	bindings map[gridtypes.SessionID]string
}

// NewInMemory returns an empty InMemory session map.
func NewInMemory() *InMemory {
	return &InMemory{bindings: make(map[gridtypes.SessionID]string)}
}

// Add implements Map.
func (m *InMemory) Add(_ context.Context, sessionID gridtypes.SessionID, nodeURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bindings[sessionID]; exists {
		return &gridtypes.SessionExists{SessionID: sessionID}
	}
	m.bindings[sessionID] = nodeURI
	return nil
}

// GetURI implements Map.
func (m *InMemory) GetURI(_ context.Context, sessionID gridtypes.SessionID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uri, ok := m.bindings[sessionID]
	if !ok {
		return "", &gridtypes.NoSuchSession{SessionID: sessionID}
	}
	return uri, nil
}

// Remove implements Map.
func (m *InMemory) Remove(_ context.Context, sessionID gridtypes.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings, sessionID)
	return nil
}

// Ready implements Map. InMemory has no external dependency, so it is
// always ready once constructed.
func (m *InMemory) Ready(_ context.Context) bool {
	return true
}

// Len reports the number of currently bound sessions, for tests and
// status endpoints.
func (m *InMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bindings)
}
