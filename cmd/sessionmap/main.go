// Command sessionmap runs the Session Map as a standalone process: the
// durable-enough sessionId -> node URI binding behind the router-facing
// convenience endpoints. Backed by an in-process map by default, or a shared Redis
// instance when more than one process needs to see the same table.
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

	"github.com/spf13/pflag"

	"github.com/browsergrid/gridcore/internal/config"
	"github.com/browsergrid/gridcore/internal/httpapi"
	"github.com/browsergrid/gridcore/internal/logging"
	"github.com/browsergrid/gridcore/internal/sessionmap"
)

func main() {
	fs := pflag.NewFlagSet("sessionmap", pflag.ExitOnError)
	flags := config.BindFlags(fs)
	addr := fs.String("sessionmap.addr", ":5560", "bind address for the session map's HTTP surface")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sessionmap: ", err)
		os.Exit(1)
	}
	flags.Apply(cfg)

	log := logging.New(cfg.Log.Level, "sessionmap", cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m sessionmap.Map
	if cfg.SessionMap.Backend == "redis" {
		client := sessionmap.NewClient(cfg.SessionMap.RedisAddr, cfg.SessionMap.RedisPassword, cfg.SessionMap.RedisDB)
		defer client.Close()
		m = sessionmap.NewRedis(client)
		log.Info().Str("addr", cfg.SessionMap.RedisAddr).Msg("using redis session map backend")
	} else {
		m = sessionmap.NewInMemory()
		log.Info().Msg("using in-memory session map backend")
	}

	r := httpapi.NewSessionMapRouter(log, m, cfg.Secret.Value)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", *addr).Msg("sessionmap listening")
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
