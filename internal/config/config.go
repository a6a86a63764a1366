// Package config loads the grid's configuration in layered order:
// compiled-in defaults, then a YAML file, then environment variables, then
// CLI flags, each layer overriding the last. Only Secret and
// HealthCheckInterval are hot-reloadable after startup; see reload.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Distributor carries the distributor.host|port|hostname/implementation
// keys and the health-check cadence.
type Distributor struct {
	Host                string        `yaml:"host"`
	Port                int           `yaml:"port"`
	Hostname            string        `yaml:"hostname"`
	Implementation      string        `yaml:"implementation"`
	HealthCheckInterval time.Duration `yaml:"healthcheck-interval"`
}

// SessionQueue carries the sessionqueue.* keys. DistributorTargets is
// only meaningful in a split deployment (queuer and distributor as
// separate processes): each URL there receives a best-effort webhook
// whenever a request is enqueued, so the distributor can react before
// its next scheduling tick rather than only on its own polling cadence.
type SessionQueue struct {
	RequestTimeout     time.Duration `yaml:"request-timeout"`
	RetryInterval      time.Duration `yaml:"retry-interval"`
	DistributorTargets []string      `yaml:"distributor-targets"`
}

// Secret carries secret.value, which may also be supplied via the
// GRIDCORE_SECRET environment variable or the --secret flag.
type Secret struct {
	Value string `yaml:"value"`
}

// NodeDescriptor mirrors node.DriverDescriptor so it can be declared in
// YAML without the config package importing node (which itself does not
// depend on config, keeping the dependency graph one-directional).
type NodeDescriptor struct {
	Name        string         `yaml:"name"`
	FactoryID   string         `yaml:"factoryId"`
	Stereotype  map[string]any `yaml:"stereotype"`
	MaxSessions int            `yaml:"maxSessions"`
	Upstream    string         `yaml:"upstream"`
}

// Node carries the node.* keys: the URI this node advertises to the
// distributor and the fixed list of driver-backed slots it hosts.
type Node struct {
	URI            string           `yaml:"uri"`
	Version        string           `yaml:"version"`
	AutoDetect     bool             `yaml:"autodetect"`
	Descriptors    []NodeDescriptor `yaml:"descriptors"`
	RequestTimeout time.Duration    `yaml:"request-timeout"`
	DistributorURL string           `yaml:"distributor-url"`
}

// SessionMap carries the sessionmap.* keys. Backend selects between the
// in-process map (the default, correct for a single-process deployment
// or tests) and a shared Redis instance (required once more than one
// distributor process needs to see the same session table).
type SessionMap struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis-addr"`
	RedisPassword string `yaml:"redis-password"`
	RedisDB       int    `yaml:"redis-db"`
}

// Log carries the log.* keys shared by every process.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the root configuration for every gridcore process. Not every
// process reads every field — a node process, say, never looks at
// SessionQueue — but the struct is shared so all of them can be configured
// from one file.
type Config struct {
	Distributor  Distributor  `yaml:"distributor"`
	SessionQueue SessionQueue `yaml:"sessionqueue"`
	SessionMap   SessionMap   `yaml:"sessionmap"`
	Node         Node         `yaml:"node"`
	Secret       Secret       `yaml:"secret"`
	Log          Log          `yaml:"log"`
}

// minHealthCheckInterval mirrors distributor.minHealthCheckInterval: a
// configured interval of zero or less is floored rather than treated as
// "disabled".
const minHealthCheckInterval = 10 * time.Second

// Default returns the compiled-in defaults, the base of the layering order.
func Default() *Config {
	return &Config{
		Distributor: Distributor{
			Host:                "0.0.0.0",
			Port:                5553,
			HealthCheckInterval: 300 * time.Second,
		},
		SessionQueue: SessionQueue{
			RequestTimeout: 300 * time.Second,
			RetryInterval:  15 * time.Second,
		},
		SessionMap: SessionMap{
			Backend: "memory",
		},
		Node: Node{
			RequestTimeout: 30 * time.Second,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load builds a Config by layering, in order: Default(), the YAML file at
// path (skipped entirely if path is empty), environment variables, then
// normalizing. CLI flags are layered separately by BindFlags/Flags.Apply,
// since pflag needs the FlagSet parsed before its values can be read.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg.mergeEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// mergeEnv applies the one documented environment override: the secret may
// be supplied out-of-band rather than committed to the config file.
func (c *Config) mergeEnv() {
	if v, ok := os.LookupEnv("GRIDCORE_SECRET"); ok && v != "" {
		c.Secret.Value = v
	}
}

// normalize clamps and fills in values that depend on more than a single
// field's default, such as the health-check floor.
func (c *Config) normalize() {
	if c.Distributor.HealthCheckInterval < minHealthCheckInterval {
		c.Distributor.HealthCheckInterval = minHealthCheckInterval
	}
	if c.Distributor.Host == "" {
		c.Distributor.Host = "0.0.0.0"
	}
}

// Validate reports a ConfigError-worthy problem found in the layered
// config. Callers exit the process on a non-nil return, per the spec's
// propagation policy for bad startup configuration.
func (c *Config) Validate() error {
	if c.Distributor.Port < 0 || c.Distributor.Port > 65535 {
		return fmt.Errorf("distributor.port out of range: %d", c.Distributor.Port)
	}
	if c.SessionQueue.RequestTimeout <= 0 {
		return fmt.Errorf("sessionqueue.request-timeout must be positive")
	}
	if c.SessionQueue.RetryInterval <= 0 {
		return fmt.Errorf("sessionqueue.retry-interval must be positive")
	}
	switch c.SessionMap.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("sessionmap.backend must be \"memory\" or \"redis\", got %q", c.SessionMap.Backend)
	}
	if c.SessionMap.Backend == "redis" && c.SessionMap.RedisAddr == "" {
		return fmt.Errorf("sessionmap.redis-addr is required when sessionmap.backend is \"redis\"")
	}
	return nil
}

// Clone returns a shallow struct copy for hand-off across the hot-reload
// boundary: scalar fields are copied, while slice and map fields still
// share their backing storage with c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
