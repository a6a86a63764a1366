// Command distributor runs the grid's scheduling core: it owns the
// Grid Model, matches queued requests to free slots, and answers node
// registration, status and drain calls. In the default all-in-one
// deployment it also embeds the Session Queue and Session Map so a
// single process can serve the whole grid; the queue can instead point
// at a remote queuer process for a split deployment.
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

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/pflag"

	"github.com/browsergrid/gridcore/internal/config"
	"github.com/browsergrid/gridcore/internal/distributor"
	"github.com/browsergrid/gridcore/internal/eventbus"
	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/httpapi"
	"github.com/browsergrid/gridcore/internal/logging"
	"github.com/browsergrid/gridcore/internal/queue"
	"github.com/browsergrid/gridcore/internal/sessionmap"
)

func main() {
	fs := pflag.NewFlagSet("distributor", pflag.ExitOnError)
	flags := config.BindFlags(fs)
	remoteQueueURL := fs.String("distributor.remote-queue-url", "", "base URL of a standalone queuer process; empty embeds the queue in this process")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "distributor: ", err)
		os.Exit(1)
	}
	flags.Apply(cfg)

	log := logging.New(cfg.Log.Level, "distributor", cfg.Log.Pretty)

	holder := config.NewHolder(log, cfg, flags.ConfigFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.ConfigFile != "" {
		go func() {
			if err := holder.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("config watch stopped")
			}
		}()
	}

	bus := eventbus.NewInMemory(log)
	defer bus.Close()

	var sessions sessionmap.Map
	if cfg.SessionMap.Backend == "redis" {
		client := sessionmap.NewClient(cfg.SessionMap.RedisAddr, cfg.SessionMap.RedisPassword, cfg.SessionMap.RedisDB)
		defer client.Close()
		sessions = sessionmap.NewRedis(client)
	} else {
		sessions = sessionmap.NewInMemory()
	}

	var queueClient distributor.QueueClient
	var localQueue *queue.Queue
	if *remoteQueueURL != "" {
		queueClient = distributor.NewRemoteQueueClient(gridtypes.NewClient(cfg.Secret.Value), *remoteQueueURL)
	} else {
		localQueue = queue.New(log, bus, clock.SystemClock, queue.Config{
			RequestTimeout: func() time.Duration { return holder.Get().SessionQueue.RequestTimeout },
			RetryInterval:  func() time.Duration { return holder.Get().SessionQueue.RetryInterval },
			Secret:         cfg.Secret.Value,
		})
		queueClient = localQueue
	}

	d := distributor.New(log, bus, queueClient, sessions, clock.SystemClock, distributor.Config{
		Secret:              cfg.Secret.Value,
		HealthCheckInterval: func() time.Duration { return holder.Get().Distributor.HealthCheckInterval },
		Selector:            distributor.DefaultSlotSelector{},
	})
	defer d.Close()

	go d.Run(ctx)

	// localQueue is nil when this process schedules against a remote
	// queuer; passed as a bare *queue.Queue it would trip the classic
	// typed-nil-in-interface trap, so the two cases are split explicitly.
	var r chi.Router
	if localQueue != nil {
		r = httpapi.NewDistributorRouter(log, d, localQueue, cfg.Secret.Value)
	} else {
		r = httpapi.NewDistributorRouter(log, d, nil, cfg.Secret.Value)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Distributor.Host, cfg.Distributor.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("distributor listening")
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
