package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Flags holds the CLI flag values for a gridcore process, bound with
// explicit pflag accessors rather than reflection — the flag surface is
// small and fixed per process, so there's nothing for a generic binder to
// earn its keep on.
type Flags struct {
	ConfigFile          string
	Host                string
	Port                int
	HealthCheckInterval time.Duration
	RequestTimeout      time.Duration
	RetryInterval       time.Duration
	Secret              string
	LogLevel            string
	LogPretty           bool
	NodeURI             string
	NodeUpstream        string
	NodeDistributorURL  string
	SessionMapBackend   string
	SessionMapRedisAddr string
	DistributorTargets  string
}

// BindFlags registers the flag surface on fs and returns the Flags struct
// its values will be written into once fs.Parse has run.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigFile, "config", "", "path to a YAML config file")
	fs.StringVar(&f.Host, "distributor.host", "", "distributor bind host")
	fs.IntVar(&f.Port, "distributor.port", 0, "distributor bind port")
	fs.DurationVar(&f.HealthCheckInterval, "distributor.healthcheck-interval", 0, "node health-check interval (floor 10s)")
	fs.DurationVar(&f.RequestTimeout, "sessionqueue.request-timeout", 0, "time a request may wait in the queue")
	fs.DurationVar(&f.RetryInterval, "sessionqueue.retry-interval", 0, "retry interval handed to the queue (stored only; the distributor's scheduling tick runs on its own fixed interval)")
	fs.StringVar(&f.Secret, "secret", "", "intra-cluster registration secret")
	fs.StringVar(&f.LogLevel, "log.level", "", "zerolog level (debug|info|warn|error)")
	fs.BoolVar(&f.LogPretty, "log.pretty", false, "write human-readable console logs instead of JSON")
	fs.StringVar(&f.NodeURI, "node.uri", "", "URI this node advertises to the distributor")
	fs.StringVar(&f.NodeUpstream, "node.upstream", "", "upstream WebDriver endpoint this node's slots forward to")
	fs.StringVar(&f.NodeDistributorURL, "node.distributor-url", "", "base URL of the distributor this node registers with")
	fs.StringVar(&f.SessionMapBackend, "sessionmap.backend", "", "session map backend (memory|redis)")
	fs.StringVar(&f.SessionMapRedisAddr, "sessionmap.redis-addr", "", "redis address for the session map (backend=redis)")
	fs.StringVar(&f.DistributorTargets, "sessionqueue.distributor-targets", "", "comma-separated distributor base URLs to notify on enqueue (split deployment only)")
	return f
}

// Apply layers non-zero flag values over cfg, the last and highest-priority
// layer in the load order.
func (f *Flags) Apply(cfg *Config) {
	if f.Host != "" {
		cfg.Distributor.Host = f.Host
	}
	if f.Port != 0 {
		cfg.Distributor.Port = f.Port
	}
	if f.HealthCheckInterval != 0 {
		cfg.Distributor.HealthCheckInterval = f.HealthCheckInterval
	}
	if f.RequestTimeout != 0 {
		cfg.SessionQueue.RequestTimeout = f.RequestTimeout
	}
	if f.RetryInterval != 0 {
		cfg.SessionQueue.RetryInterval = f.RetryInterval
	}
	if f.Secret != "" {
		cfg.Secret.Value = f.Secret
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogPretty {
		cfg.Log.Pretty = true
	}
	if f.NodeURI != "" {
		cfg.Node.URI = f.NodeURI
	}
	if f.NodeDistributorURL != "" {
		cfg.Node.DistributorURL = f.NodeDistributorURL
	}
	if f.NodeUpstream != "" {
		if len(cfg.Node.Descriptors) == 0 {
			cfg.Node.Descriptors = []NodeDescriptor{{Name: "default", FactoryID: "http", MaxSessions: 1, Upstream: f.NodeUpstream}}
		} else {
			cfg.Node.Descriptors[0].Upstream = f.NodeUpstream
		}
	}
	if f.SessionMapBackend != "" {
		cfg.SessionMap.Backend = f.SessionMapBackend
	}
	if f.SessionMapRedisAddr != "" {
		cfg.SessionMap.RedisAddr = f.SessionMapRedisAddr
	}
	if f.DistributorTargets != "" {
		cfg.SessionQueue.DistributorTargets = strings.Split(f.DistributorTargets, ",")
	}
	cfg.normalize()
}
