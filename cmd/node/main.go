// Command node runs a Node process: it advertises a fixed pool of
// browser slots, serves newSession/status/healthz/drain, forwards
// in-session WebDriver commands to whichever backend a slot's factory
// started, and registers itself with a distributor on startup.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/browsergrid/gridcore/internal/config"
	"github.com/browsergrid/gridcore/internal/driverfactory"
	"github.com/browsergrid/gridcore/internal/eventbus"
	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/httpapi"
	"github.com/browsergrid/gridcore/internal/logging"
	"github.com/browsergrid/gridcore/internal/node"
)

// knownDriverPorts gives AutoDetect-found binaries a default upstream
// to proxy to, matching each driver's own default listen port. A
// deployment with drivers on non-default ports must configure
// node.descriptors explicitly instead of relying on autodetect.
var knownDriverPorts = map[string]string{
	"chromedriver": "http://127.0.0.1:9515",
	"geckodriver":  "http://127.0.0.1:4444",
	"msedgedriver": "http://127.0.0.1:9515",
	"safaridriver": "http://127.0.0.1:4444",
}

func main() {
	fs := pflag.NewFlagSet("node", pflag.ExitOnError)
	flags := config.BindFlags(fs)
	addr := fs.String("node.addr", ":5555", "bind address for the node's HTTP surface")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "node: ", err)
		os.Exit(1)
	}
	flags.Apply(cfg)

	log := logging.New(cfg.Log.Level, "node", cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.NewInMemory(log)
	defer bus.Close()

	registry, descriptors := buildFactoryRegistry(cfg, log)
	if len(descriptors) == 0 {
		log.Fatal().Msg("no driver descriptors configured (node.descriptors is empty and node.autodetect found nothing)")
	}

	n := node.New(log, bus, registry, node.Config{
		URI:         cfg.Node.URI,
		Version:     cfg.Node.Version,
		Descriptors: descriptors,
	})

	if cfg.Node.DistributorURL != "" {
		go registerWithDistributor(ctx, log, cfg, n)
	} else {
		log.Warn().Msg("node.distributor-url not set, this node will never be scheduled against")
	}

	r := httpapi.NewNodeRouter(log, n, cfg.Secret.Value)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", *addr).Str("uri", cfg.Node.URI).Msg("node listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildFactoryRegistry wires one driverfactory.HTTPFactory per
// configured or auto-detected driver descriptor. Actually discovering,
// launching or supervising the driver process is out of scope here —
// every factory just proxies to an upstream URL that is assumed to
// already be running.
func buildFactoryRegistry(cfg *config.Config, log zerolog.Logger) (*node.FactoryRegistry, []node.DriverDescriptor) {
	registry := node.NewFactoryRegistry()
	var descriptors []node.DriverDescriptor

	for _, d := range cfg.Node.Descriptors {
		if d.Upstream == "" {
			log.Warn().Str("descriptor", d.Name).Msg("no upstream configured, skipping")
			continue
		}
		registry.Register(d.FactoryID, driverfactory.NewHTTPFactory(d.Upstream, cfg.Node.RequestTimeout))
		descriptors = append(descriptors, node.DriverDescriptor{
			Name:        d.Name,
			FactoryID:   d.FactoryID,
			Stereotype:  gridtypes.Stereotype(d.Stereotype),
			MaxSessions: d.MaxSessions,
		})
	}

	if cfg.Node.AutoDetect {
		for _, found := range node.AutoDetect() {
			upstream, ok := knownDriverPorts[found.FactoryID]
			if !ok {
				continue
			}
			registry.Register(found.FactoryID, driverfactory.NewHTTPFactory(upstream, cfg.Node.RequestTimeout))
			descriptors = append(descriptors, found)
		}
	}

	return registry, descriptors
}

// registerWithDistributor retries registration with an unbounded
// exponential backoff (grounded on the etcd session reconnect pattern
// this codebase's dependency pack already uses) — a node that can't
// reach its distributor at boot should keep trying rather than exit,
// since the distributor may simply not be up yet.
func registerWithDistributor(ctx context.Context, log zerolog.Logger, cfg *config.Config, n *node.Node) {
	client := gridtypes.NewClient(cfg.Secret.Value)
	url := cfg.Node.DistributorURL + "/se/grid/distributor/node"

	body := map[string]string{
		"nodeId": string(n.ID()),
		"uri":    n.URI(),
	}

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Post(reqCtx, url, body, nil)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		log.Error().Err(err).Msg("giving up registering with distributor")
		return
	}
	log.Info().Str("distributor", cfg.Node.DistributorURL).Msg("registered with distributor")
}
