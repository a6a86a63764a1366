package node

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// SessionHandle is whatever a SessionFactory hands back for a running
// session: enough to forward a WebDriver command and to stop the
// session. Nothing about its internals (process handle, remote endpoint,
// reverse-proxy target) is visible to Node.
type SessionHandle interface {
	// Forward relays a single in-session WebDriver command and returns
	// the downstream status code and body verbatim.
	Forward(ctx context.Context, method, path string, body []byte) (status int, respBody []byte, err error)

	// Stop ends the session. It must be safe to call more than once.
	Stop(ctx context.Context) error
}

// SessionFactory is the black box that turns a capability-matched slot
// into a running session. A factory implementation owns everything
// about actually launching or attaching to a browser; Node only ever
// calls NewSession and reacts to its result.
type SessionFactory interface {
	// NewSession attempts to start a session. A transient refusal (e.g.
	// the underlying driver pool is momentarily exhausted) must be
	// reported as *gridtypes.RetryableRequest so the scheduler retries
	// the request rather than rejecting it outright.
	NewSession(ctx context.Context, req gridtypes.CreateSessionRequest) (handle SessionHandle, encodedResponse []byte, err error)
}

// DriverDescriptor is one entry in the configuration-driven registry
// that replaces the reflective classpath service-loading the original
// implementation used to discover driver plugins.
type DriverDescriptor struct {
	Name        string             `yaml:"name"`
	FactoryID   string             `yaml:"factoryId"`
	Stereotype  gridtypes.Stereotype `yaml:"stereotype"`
	MaxSessions int                `yaml:"maxSessions"`
}

// FactoryRegistry is a map from factory identifier to constructor,
// wired at program start and selected by configuration name rather than
// by runtime class lookup.
type FactoryRegistry struct {
	factories map[string]SessionFactory
}

// NewFactoryRegistry returns an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]SessionFactory)}
}

// Register associates a factory identifier with a concrete factory. It
// is typically called once per driver integration at process start.
func (r *FactoryRegistry) Register(factoryID string, factory SessionFactory) {
	r.factories[factoryID] = factory
}

// Get resolves a factory identifier, as named in a DriverDescriptor.
func (r *FactoryRegistry) Get(factoryID string) (SessionFactory, bool) {
	f, ok := r.factories[factoryID]
	return f, ok
}

// knownBrowserBinaries maps a binary name found on PATH to the
// factory identifier and stereotype AutoDetect should register for it.
var knownBrowserBinaries = map[string]DriverDescriptor{
	"chromedriver": {Name: "chrome", FactoryID: "chromedriver", Stereotype: gridtypes.Stereotype{"browserName": "chrome"}, MaxSessions: 1},
	"geckodriver":  {Name: "firefox", FactoryID: "geckodriver", Stereotype: gridtypes.Stereotype{"browserName": "firefox"}, MaxSessions: 1},
	"msedgedriver": {Name: "MicrosoftEdge", FactoryID: "msedgedriver", Stereotype: gridtypes.Stereotype{"browserName": "MicrosoftEdge"}, MaxSessions: 1},
	"safaridriver": {Name: "safari", FactoryID: "safaridriver", Stereotype: gridtypes.Stereotype{"browserName": "safari"}, MaxSessions: 1},
}

// AutoDetect walks PATH for known driver binaries and returns one
// DriverDescriptor per binary found. It is disabled by default — a
// deployment opts in via configuration — because silently discovering
// and advertising whatever happens to be installed on a host is a poor
// default for a grid that is otherwise explicit about its slot
// inventory.
func AutoDetect() []DriverDescriptor {
	path := os.Getenv("PATH")
	var found []DriverDescriptor
	for _, dir := range strings.Split(path, string(os.PathListSeparator)) {
		for binary, descriptor := range knownBrowserBinaries {
			candidate := filepath.Join(dir, binary)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() && isExecutable(info.Mode()) {
				found = append(found, descriptor)
			}
		}
	}
	return found
}

func isExecutable(mode os.FileMode) bool {
	return mode&0o111 != 0
}
