// Command queuer runs the Session Queue as a standalone process: the
// FIFO of pending session requests, with head-of-queue retry and the
// blocking add/dequeue/retry/remove surface a distributor (local or
// remote) drives. Running it separately from the distributor lets the
// queue scale or restart independently of the scheduling core.
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
	"github.com/spf13/pflag"

	"github.com/browsergrid/gridcore/internal/config"
	"github.com/browsergrid/gridcore/internal/eventbus"
	"github.com/browsergrid/gridcore/internal/gridtypes"
	"github.com/browsergrid/gridcore/internal/httpapi"
	"github.com/browsergrid/gridcore/internal/logging"
	"github.com/browsergrid/gridcore/internal/queue"
)

func main() {
	fs := pflag.NewFlagSet("queuer", pflag.ExitOnError)
	flags := config.BindFlags(fs)
	addr := fs.String("queuer.addr", ":5559", "bind address for the queuer's HTTP surface")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "queuer: ", err)
		os.Exit(1)
	}
	flags.Apply(cfg)

	log := logging.New(cfg.Log.Level, "queuer", cfg.Log.Pretty)
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

	if len(cfg.SessionQueue.DistributorTargets) > 0 {
		notifier := eventbus.NewNotifier(log, gridtypes.NewClient(cfg.Secret.Value), func() []string {
			return holder.Get().SessionQueue.DistributorTargets
		})
		bus.Subscribe(eventbus.TopicNewSessionRequest, func(payload any) {
			evt, ok := payload.(eventbus.NewSessionRequestEvent)
			if !ok {
				return
			}
			notifier.NotifyNewSessionRequest(context.Background(), evt.RequestID)
		})
	}

	q := queue.New(log, bus, clock.SystemClock, queue.Config{
		RequestTimeout: func() time.Duration { return holder.Get().SessionQueue.RequestTimeout },
		RetryInterval:  func() time.Duration { return holder.Get().SessionQueue.RetryInterval },
		Secret:         cfg.Secret.Value,
	})
	defer q.Close()

	r := httpapi.NewQueueRouter(log, q, cfg.Secret.Value)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", *addr).Msg("queuer listening")
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
